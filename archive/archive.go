package archive

import (
	"regexp"
	"strings"
)

// Well-known entry names.
const (
	TableName    = "resources.arsc"
	ManifestName = "AndroidManifest.xml"
)

// Archive is the set of named entries the codecs read from and write to.
type Archive interface {
	// Names returns the entry names in archive order.
	Names() []string
	// Has reports whether an entry exists.
	Has(name string) bool
	// Get returns the uncompressed content of an entry, or errs.ErrEntryNotFound.
	Get(name string) ([]byte, error)
	// Replace stores data under name, adding the entry when it is new.
	Replace(name string, data []byte) error
	// Remove deletes an entry and reports whether it existed.
	Remove(name string) bool
}

var dexName = regexp.MustCompile(`^classes[0-9]*\.dex$`)

// IsDex reports whether name is a top-level DEX entry (classes.dex, classes2.dex, ...).
func IsDex(name string) bool {
	return dexName.MatchString(name)
}

// DexNames returns the DEX entries of a in archive order.
func DexNames(a Archive) []string {
	var names []string
	for _, name := range a.Names() {
		if IsDex(name) {
			names = append(names, name)
		}
	}

	return names
}

// RetainOnly removes every entry of a whose name is not in keep.
//
// Returns:
//   - int: number of removed entries
func RetainOnly(a Archive, keep ...string) int {
	wanted := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		wanted[name] = struct{}{}
	}

	removed := 0
	for _, name := range a.Names() {
		if _, ok := wanted[name]; ok {
			continue
		}
		if a.Remove(name) {
			removed++
		}
	}

	return removed
}

const maxFileNameLength = 50

// SanitizeFileName reduces name to a safe file name made of ASCII letters,
// digits and single separators (. + - _ #). Separators are dropped at the start
// and never repeated. The result is capped at 50 characters and is empty when
// nothing usable remains.
func SanitizeFileName(name string) string {
	var b strings.Builder
	skipSymbol := true
	for _, ch := range name {
		if b.Len() >= maxFileNameLength {
			break
		}
		switch {
		case ch == '.' || ch == '+' || ch == '-' || ch == '_' || ch == '#':
			if !skipSymbol {
				b.WriteRune(ch)
			}
			skipSymbol = true
		case ch >= '0' && ch <= '9', ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z':
			b.WriteRune(ch)
			skipSymbol = false
		default:
			skipSymbol = true
		}
	}

	return b.String()
}
