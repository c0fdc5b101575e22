package interfaces

type Initializable interface {
	Init()
}

type Updateable interface {
	Update()
}

type Dirtyable interface {
	IsDirty() bool
	ClearDirty()
	MarkDirty()
}
