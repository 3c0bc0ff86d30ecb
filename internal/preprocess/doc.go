// Package preprocess converts free-form drawings into the fixed 28x28
// representation a digit model expects.
//
// The stages run in order: grayscale conversion, foreground bounding box
// location with 10% padding, aspect-preserving scaling of the longer side to
// 20 pixels, centering on a zero 28x28 canvas and flattening to 784 values in
// [0,1]. An image without any non-zero pixel skips scaling and produces an
// all-zero vector.
package preprocess
