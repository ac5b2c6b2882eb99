/*
Package registry holds the process-wide registries of docstore.

Generator Registry:
Maps record kinds to functions producing synthetic records, used by the
fixtures package and by scenario steps that generate their documents:

	registry.RegisterGenerator("user", func(seq int) *document.Document {
	    return document.New().Set("firstName", document.String("Ann"))
	})

Collection Registry:
Associates Go types with collection names so typed collections can be
resolved without repeating the name:

	registry.BindCollection[Student]("students")
	name, err := registry.CollectionFor[Student]()

Both registries are safe for concurrent use and are normally populated during
initialization, typically in init() functions.
*/
package registry
