package pipeline

// WithTimeProvider overrides the clock for tests.
func WithTimeProvider(tp timeProvider) Options {
	return func(o *options) {
		o.timeProvider = tp
	}
}

// WithIDGenerator overrides report ID generation for tests.
func WithIDGenerator(newID func() string) Options {
	return func(o *options) {
		o.newID = newID
	}
}
