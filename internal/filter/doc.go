// Package filter implements the payload codec pipeline.
//
// A pipeline is declared as a comma-separated list of filter names, for
// example "shuffle,zstd". Encoding applies the filters in declaration
// order; decoding applies them in reverse order. Each filter transforms
// data between its decoded and encoded form.
//
// Available filters: deflate, shuffle, fletcher32, zstd, s2, lz4.
package filter
