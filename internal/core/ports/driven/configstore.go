package driven

// ConfigStore is the user's settings file as dotted keys ("embedding.model",
// "retrieval.confidence_threshold"). Typed getters return the zero value
// when a key is missing or holds another type; callers that need to tell
// the two apart use Has or Get.
type ConfigStore interface {
	Get(key string) (any, bool)
	Has(key string) bool
	// Keys lists every set key, sorted.
	Keys() []string

	GetString(key string) string
	GetInt(key string) int
	// GetFloat also accepts integers.
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set and Unset write the file before returning.
	Set(key string, value any) error
	Unset(key string) error

	// Path is the file backing the store.
	Path() string
}
