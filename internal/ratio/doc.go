// Package ratio implements the hysteresis safety controller for the account
// share ratio. A reading strictly below the floor activates an emergency
// that blocks all ratio-costing downloads; only a reading at or above the
// strictly higher recovery threshold deactivates it. Readings inside the
// band never change state, so measurement noise cannot flap the controller.
package ratio
