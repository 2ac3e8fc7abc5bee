// Package rf models radio-frequency emitters and receivers: the Emission
// record carried between players, the scanning Antenna that propagates it,
// the RfSystem link budget, and the Radar, Jammer and Rwr sensors built on
// top of it.
//
// A frame runs in phases (see timectrl). Antennas steer in the dynamics
// phase, transmit in the transmit phase (delivering emissions to players of
// interest and returning echoes to their transmitter), and sensors score
// what they received in the receive phase. Emissions are pooled per
// antenna: a pointer handed to a receiver stays valid until the
// originating antenna's next transmit, so anything that outlives the frame
// is copied by value.
package rf
