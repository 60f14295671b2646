// Package transform holds the content transforms of a build: Sass
// compilation, CSS prefixing and minification, JavaScript linting and
// bundling, image optimization and cache busting.
//
// Each transform maps a set of in-memory files to a new set. Nothing is
// written to disk here; callers commit the result only when every stage of a
// task succeeded.
package transform
