// Package harness runs ledger scenarios end to end.
//
// A scenario drives real sessions on one or more simulated devices. Every
// device has its own in-memory local cache; all devices of a scenario share
// one in-memory backup slot, so restore-on-sign-in and offline behavior can
// be exercised exactly as two installations of the app would see them.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: pay_and_restore
//	description: "A payment made on one device is visible on another"
//	today: "2024-03-15"
//	steps:
//	  - op: add_vendor
//	    args: { id: v1, name: Acme Mills }
//	  - op: add_invoice
//	    args:
//	      id: i1
//	      vendor: v1
//	      number: INV-1
//	      issued: "2024-03-01"
//	      items:
//	        - { name: Flour, quantity: "2", unitPrice: "10.50" }
//	  - op: pay
//	    args: { id: i1, amount: "21" }
//	  - op: open_device
//	    device: phone
//	    restored: true
//	expect:
//	  - device: phone
//	    invoices:
//	      - { id: i1, status: Paid, paymentDate: "2024-03-15" }
//
// Steps run on the device named by "device", "main" when omitted. The main
// device is opened before the first step. A step that is expected to fail
// names the error kind in "error"; any other failure fails the scenario.
//
// # Error Kinds
//
//   - validation: the record was rejected
//   - not_found: the id does not exist
//   - local_storage: applied in memory, the local save failed
//   - remote_unavailable: applied locally, the backup slot was unreachable
//   - sync_disabled: the scenario runs without a backup slot
//   - schema: an extraction response did not match the candidate schema
//   - no_candidate: an extraction response held no usable invoice
package harness
