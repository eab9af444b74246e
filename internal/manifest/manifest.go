// Package manifest declares the fixed set of shapefile components extracted
// from each cadastral-unit archive. A shapefile layer is only usable when
// every companion file is present, so the manifest is expressed per layer
// rather than as a flat filename list.
package manifest

import "path/filepath"

// Layer is one shapefile layer identified by its base name.
type Layer struct {
	Name string
}

// companionExts are the component files that must travel together for a
// layer to be readable: geometry, index, attributes, projection, encoding.
var companionExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// The two layers published per cadastral unit. Definition carries the
// attributes, Parcel carries the geometries the join targets.
var (
	Definition = Layer{Name: "PARCELY_KN_DEF"}
	Parcel     = Layer{Name: "PARCELY_KN_P"}
)

// Shapefile returns the layer's .shp component filename.
func (l Layer) Shapefile() string { return l.Name + ".shp" }

// Components returns every component filename of the layer.
func (l Layer) Components() []string {
	out := make([]string, 0, len(companionExts))
	for _, ext := range companionExts {
		out = append(out, l.Name+ext)
	}
	return out
}

// Files returns the full extraction manifest: every component of both
// layers, in a stable order.
func Files() []string {
	return append(Definition.Components(), Parcel.Components()...)
}

// FileSet returns the manifest as a lookup set keyed by base filename.
func FileSet() map[string]bool {
	set := make(map[string]bool)
	for _, name := range Files() {
		set[name] = true
	}
	return set
}

// Missing reports which manifest files are absent from dir, using the
// provided exists check. An empty result means both layers are complete.
func Missing(dir string, exists func(path string) bool) []string {
	var missing []string
	for _, name := range Files() {
		if !exists(filepath.Join(dir, name)) {
			missing = append(missing, name)
		}
	}
	return missing
}
