package cache

// Manager holds the named backends of one context and closes them together.
type Manager interface {
	AddCache(name string, cache RawCache)
	GetRawCache(name string) (RawCache, bool)
	RemoveCache(name string) error
	Names() []string
	Close() error
}
