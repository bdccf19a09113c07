// Package rendercache stores rendered entity images on disk and maintains the
// metadata index read by the widget surface.
//
// Files live at {root}/{category}/{entityID}{suffix}.png where the suffix is
// empty for Thumbnail and "_gift" for Gift. The index is
// {root}/{category}/index.json, a JSON array of MetadataRecord.
//
// Byte writes always precede index writes, so a record in the index never
// points at a file that has not been written. Index read-modify-write cycles
// are serialized; byte writes for different entities are not.
//
// A bounded in-memory layer sits in front of Load and is kept coherent by
// Save and Delete. Watch evicts it when files are removed externally.
package rendercache
