// Package domain holds the types shared by the collection manager, the record
// store backends and the HTTP adapters: dynamically typed field values, records,
// column descriptors, collections and the failure kinds operations report.
package domain
