package link

// GATT identifiers for the speech2prompt BLE service. ServiceUUID is the
// well-known service identifier; the three characteristic UUIDs are this
// implementation's own. Central scanning filters on ServiceUUID; connect()
// locates the three characteristics below by (ServiceUUID, char UUID).
const (
	ServiceUUID = "12345678-1234-5678-1234-56789abcdef0"

	// CommandRXCharUUID is the write characteristic: central->peer packets.
	CommandRXCharUUID = "5350524d-0002-4000-8000-00805f9b34fb"

	// ResponseTXCharUUID is a notify characteristic: peer->central packets.
	ResponseTXCharUUID = "5350524d-0003-4000-8000-00805f9b34fb"

	// StatusCharUUID is a notify characteristic carrying link-level status.
	StatusCharUUID = "5350524d-0004-4000-8000-00805f9b34fb"
)
