// Package codec encodes and decodes the option values the application shares
// with the site software. The site's own tooling wrote these values first, so
// the encodings are fixed: PHP-serialized arrays for legacy options, JSON
// where newer options allow it.
package codec
