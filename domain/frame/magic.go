package frame

// Magic identifies a meshcore wire frame. Frames without this prefix are
// rejected before any other field is inspected.
const Magic uint32 = 0x91929394

// HeaderSize is the fixed 8-byte header: magic(4) + version(1) + kind(1) + payload_len(2, BE).
const HeaderSize = 8

// MaxPayload bounds payload_len, which is a uint16 field.
const MaxPayload = 1<<16 - 1
