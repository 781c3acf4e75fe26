package naming

import (
	"fmt"
	"strings"
)

// NameError reports a malformed module identifier.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid module name %q: %s", e.Name, e.Reason)
}

// Resolve normalizes id. Leading "./" and "../" segments are taken relative to
// the package containing base. Empty and "." segments are dropped and ".."
// removes the preceding segment.
func Resolve(id, base string) (string, error) {
	if !hasDotSegment(id) {
		return id, nil
	}
	if isRelative(id) {
		if base == "" {
			return "", &NameError{Name: id, Reason: "relative name without a base"}
		}
		id = base[:strings.LastIndexByte(base, '/')+1] + id
	}

	segments := strings.Split(id, "/")
	out := segments[:0]
	for _, seg := range segments {
		switch {
		case seg == "" || seg == ".":
			continue
		case seg == "..":
			if len(out) == 0 {
				return "", &NameError{Name: id, Reason: "cannot navigate to parent of root"}
			}
			out = out[:len(out)-1]
		case strings.Trim(seg, ".") == "":
			return "", &NameError{Name: id, Reason: fmt.Sprintf("illegal path segment %q", seg)}
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/"), nil
}

// isRelative reports whether id starts with a "." or ".." segment.
func isRelative(id string) bool {
	first, _, _ := strings.Cut(id, "/")
	return first == "." || first == ".."
}

// hasDotSegment reports whether any segment of id consists only of dots.
func hasDotSegment(id string) bool {
	for seg := range strings.SplitSeq(id, "/") {
		if seg != "" && strings.Trim(seg, ".") == "" {
			return true
		}
	}
	return false
}

// prefixes returns the segment-wise prefixes of name, longest first, each
// paired with the remainder that follows it. The full name itself is included
// when whole is true.
func prefixes(name string, whole bool) [][2]string {
	var out [][2]string
	if whole {
		out = append(out, [2]string{name, ""})
	}
	for p := strings.LastIndexByte(name, '/'); p > 0; p = strings.LastIndexByte(name[:p], '/') {
		out = append(out, [2]string{name[:p], name[p:]})
	}
	return out
}
