package objform

// An Option adjusts the behavior of an [Engine].
type Option func(*options)

type options struct {
	enforceEnums   bool
	collectErrors  bool
	skipUnsettable bool
	identity       func(v any) (key any, ok bool)
}

// EnforceEnums makes the engine police deserialized values of
// registered enum types (see [RegisterEnum] and [RegisterFlags])
// against the set of legitimate values. Illegal values are discarded
// and the target keeps its default, without error. Off by default:
// raw values pass through unchanged.
func EnforceEnums() Option {
	return func(o *options) { o.enforceEnums = true }
}

// CollectErrors makes structural failures non-fatal: each is recorded
// with the dotted path to the failing member, the affected subtree
// resolves to its default value, and the operation continues. The
// accumulated errors are returned joined. Contract violations
// ([TypeError]) still abort immediately. Off by default: the first
// failure aborts the operation.
func CollectErrors() Option {
	return func(o *options) { o.collectErrors = true }
}

// SkipUnsettable makes deserialization silently skip members that
// cannot be written on the target instance, instead of failing.
func SkipUnsettable() Option {
	return func(o *options) { o.skipUnsettable = true }
}

// WithIdentity overrides the identity comparer used for shared-object
// detection. fn is given a value from the graph and returns a
// comparable key identifying it, or ok=false if the value has no
// identity and must be serialized afresh at every occurrence.
//
// The default comparer assigns identity to pointers and maps (keyed
// by address) and to nothing else; string values in particular are
// always treated as distinct.
func WithIdentity(fn func(v any) (key any, ok bool)) Option {
	return func(o *options) { o.identity = fn }
}
