package codec

// Codec turns values V into bytes for the shared store and back.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
