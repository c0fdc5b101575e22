// Package statsview serves runtime charts when built with the statsview tag. Without the tag
// Launch does nothing and Available reports false.
//
// With the tag, charts are served at localhost:5502/debug/statsview and pprof at
// localhost:5502/debug/pprof/.
package statsview
