package interfaces

type Observer interface {
	Notify(object interface{})
}

type Observable interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
}

type ObserverList map[Observer]Observer

// ObserverImpl adapts a function to Observer. Use a pointer to it as the subscription handle.
type ObserverImpl func(object interface{})

func (o *ObserverImpl) Notify(object interface{}) {
	(*o)(object)
}

// NewObserver returns a subscribable Observer calling fn.
func NewObserver(fn func(object interface{})) Observer {
	o := ObserverImpl(fn)
	return &o
}

// Snapshot copies the current observers so they can be notified outside a lock.
func (l ObserverList) Snapshot() []Observer {
	list := make([]Observer, 0, len(l))
	for o := range l {
		list = append(list, o)
	}
	return list
}
