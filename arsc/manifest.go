package arsc

// Manifest element and attribute names.
const (
	TagManifest    = "manifest"
	TagApplication = "application"
	AttrPackage    = "package"
)

// Application returns the application element of a manifest.
func (d *Document) Application() (*Element, bool) {
	root, ok := d.Root()
	if !ok {
		return nil, false
	}

	return root.Child(TagApplication)
}

// PackageName returns the package attribute of the manifest root.
func (d *Document) PackageName() (string, bool) {
	root, ok := d.Root()
	if !ok {
		return "", false
	}
	a, ok := root.AttributeByName(AttrPackage)
	if !ok || a.ResourceID() != 0 {
		return "", false
	}
	if s, ok := a.RawValue(); ok {
		return s, true
	}

	return a.value.StringValue()
}

// VersionCode returns the android:versionCode of the manifest root.
func (d *Document) VersionCode() (int, bool) {
	root, ok := d.Root()
	if !ok {
		return 0, false
	}
	a, ok := root.Attribute(AttrVersionCode)
	if !ok {
		return 0, false
	}
	switch a.value.Type() {
	case TypeIntDec, TypeIntHex:
		return int(int32(a.value.Data())), true
	default:
		return 0, false
	}
}

// Walk calls fn for e and every element below it, depth first.
func (e *Element) Walk(fn func(*Element)) {
	fn(e)
	for _, c := range e.Elements() {
		c.Walk(fn)
	}
}
