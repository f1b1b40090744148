// Package viz draws planar paths on a braille canvas and holds the shared
// terminal styles of the report and progress views.
package viz
