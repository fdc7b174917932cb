//go:generate go run ./gen
package bledb

// This file exists to declare the package and trigger the generator.
// The lookup data and API in this build live in bledb_data.go. You can
// import this package and call bledb.LookupService(uuid) (or
// LookupCharacteristic, LookupDescriptor, LookupVendor) or check
// bledb.DataVersion for the data version.
