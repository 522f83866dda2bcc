// Package scene holds the host-side state of the path tracer: the camera,
// the sphere list and the scene file format they are read from.
//
// # File format
//
// A scene file is line oriented. Tokens are separated by spaces or tabs.
//
//	camera ox oy oz tx ty tz
//	size N
//	sphere radius px py pz ex ey ez cr cg cb material
//	...              (N sphere lines)
//
// The material index is 0 (diffuse), 1 (specular) or 2 (refractive).
//
// # Device layout
//
// [Camera.Encode] and [Scene.EncodeSpheres] produce the little-endian byte
// images uploaded to the device. Every field is a 32-bit word: a camera is
// 15 floats (orig, target, dir, x, y), a sphere is 10 floats followed by the
// material as an unsigned integer.
package scene
