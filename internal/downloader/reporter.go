package downloader

// Reporter publishes sync events.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) {
	if f != nil {
		f(e)
	}
}

// Nop discards all events.
var Nop Reporter = ReporterFunc(nil)

// Or returns r, or Nop when r is nil.
func Or(r Reporter) Reporter {
	if r == nil {
		return Nop
	}
	return r
}
