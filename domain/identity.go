package domain

// Identity is an opaque UTF-8 string identifying a client within a
// deployment. It is carried in every frame that addresses a peer.
type Identity string
