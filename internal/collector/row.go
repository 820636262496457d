package collector

// Row is the generic model object loaded from a database table. An empty
// Path means the row has no detail page.
type Row struct {
	ID        string
	Path      string
	Paths     []string
	ListPath  string
	Published bool
}

// CanBuild implements Buildable.
func (r Row) CanBuild() bool { return r.Published }

// StaticURLs implements StaticURLer.
func (r Row) StaticURLs() []string {
	if len(r.Paths) == 0 {
		return nil
	}
	return r.Paths
}

// AbsoluteURL implements AbsoluteURLer.
func (r Row) AbsoluteURL() string { return r.Path }

// ListURL implements ListURLer.
func (r Row) ListURL() string { return r.ListPath }
