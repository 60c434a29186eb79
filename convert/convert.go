// Package convert applies metadata from external scholarly sources to paper
// records. Conversions only overwrite fields, for which the source has a
// usable value.
package convert
