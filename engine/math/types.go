package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec4 represents a 4D vector. Colours use X, Y, Z, W as R, G, B, A.
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief a 4x4 column-major matrix. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}
