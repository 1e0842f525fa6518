// Package registry provides an identity-keyed, ordered collection of
// discovered devices.
//
// A Registry keeps a lookup index and an ordered view behind a single lock, so
// no reader can ever see an identity in one but not the other. Inserting a new
// identity re-sorts the ordered view with the channel's ordering; updating an
// existing identity merges the observation into the stored record in place
// and only re-sorts when the policy asks for it.
//
// # Usage Example
//
//	reg := registry.New(registry.Policy[device.RadioDevice]{
//	    Merge:          device.MergeRadio,
//	    Less:           device.RadioLess,
//	    ResortOnUpdate: true,
//	})
//	isNew := reg.Upsert(device.RadioDevice{PeripheralID: "A", RSSI: -50})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Values returned from Get and All
// are deep copies.
package registry
