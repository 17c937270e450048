/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package promise provides a minimal future/promise implementation used as the default
// asynchronous result type for the xflight registry. A Promise is settled exactly once
// (resolved with a value or rejected with an error); any number of completion callbacks
// may be attached before or after settlement.
package promise
