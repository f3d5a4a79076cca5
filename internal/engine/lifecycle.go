package engine

// Stage names one step of a block's lifecycle for observers.
type Stage string

const (
	StageMount      Stage = "mount"
	StageNext       Stage = "next"
	StageUnmount    Stage = "unmount"
	StagePop        Stage = "pop"
	StageDispose    Stage = "dispose"
	StageRelease    Stage = "release"
	StageUnregister Stage = "unregister"
)

// LifecycleHook observes lifecycle stages as they happen. Hooks must not
// mutate the runtime.
type LifecycleHook func(stage Stage, key BlockKey)
