package chunk

// Option configures a Normalizer, ParentSplitter or ChildSplitter.
type Option func(*options)

type options struct {
	nfkc   bool
	locale string
}

func defaultOptions() options {
	return options{locale: "en"}
}

// WithUnicodeNormalization applies NFKC before whitespace collapsing, so
// fullwidth characters (including the fullwidth pipe) fold to their ASCII
// forms.
func WithUnicodeNormalization(on bool) Option {
	return func(o *options) { o.nfkc = on }
}

// WithTableLocale selects the language used to render table chunks, given as
// a BCP 47 tag such as "en" or "zh-CN". Unsupported languages fall back to
// English.
func WithTableLocale(tag string) Option {
	return func(o *options) { o.locale = tag }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
