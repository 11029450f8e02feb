package ldap

// NameClassPairHandler receives every child produced by an enumeration.
// A handler is created for one listing call and discarded afterwards.
type NameClassPairHandler interface {
	HandleNameClassPair(rec *ChildRecord) error
}

// NameClassPairHandlerFunc adapts a function to NameClassPairHandler.
type NameClassPairHandlerFunc func(rec *ChildRecord) error

func (f NameClassPairHandlerFunc) HandleNameClassPair(rec *ChildRecord) error {
	return f(rec)
}

// CountingHandler counts the records it sees.
type CountingHandler struct {
	count int
}

func (h *CountingHandler) HandleNameClassPair(_ *ChildRecord) error {
	h.count++
	return nil
}

// Count returns the number of records handled so far.
func (h *CountingHandler) Count() int {
	return h.count
}

// CollectingHandler accumulates a textual rendering of each record.
type CollectingHandler struct {
	render func(*ChildRecord) string
	items  []string
}

// NewNameCollector collects the relative names of the records.
func NewNameCollector() *CollectingHandler {
	return &CollectingHandler{render: func(rec *ChildRecord) string { return rec.Name }}
}

// NewBindingCollector collects the binding rendering of the records.
func NewBindingCollector() *CollectingHandler {
	return &CollectingHandler{render: (*ChildRecord).Binding}
}

func (h *CollectingHandler) HandleNameClassPair(rec *ChildRecord) error {
	h.items = append(h.items, h.render(rec))
	return nil
}

// Items returns the collected values in the order they were handled.
// It never returns nil.
func (h *CollectingHandler) Items() []string {
	if h.items == nil {
		return []string{}
	}
	return h.items
}

// ContextMapperHandler maps each bound record through a ContextMapper and
// keeps the results.
type ContextMapperHandler[T any] struct {
	mapper  ContextMapper[T]
	results []T
}

// NewContextMapperHandler wraps mapper.
func NewContextMapperHandler[T any](mapper ContextMapper[T]) *ContextMapperHandler[T] {
	return &ContextMapperHandler[T]{mapper: mapper}
}

// HandleNameClassPair returns the mapper's error unchanged.
func (h *ContextMapperHandler[T]) HandleNameClassPair(rec *ChildRecord) error {
	if !rec.IsBound() {
		return newError("map_context", KindMapping, rec.DN, "record "+rec.Name+" carries no attribute data; use a binding enumeration", nil)
	}

	value, err := h.mapper.MapFromContext(rec)
	if err != nil {
		return err
	}
	h.results = append(h.results, value)
	return nil
}

// Results returns the mapped values in the order they were handled.
// It never returns nil.
func (h *ContextMapperHandler[T]) Results() []T {
	if h.results == nil {
		return []T{}
	}
	return h.results
}
