//  This file is part of the eliona project.
//  Copyright © 2022 LEICOM iTEC AG. All Rights Reserved.
//  ______ _ _
// |  ____| (_)
// | |__  | |_  ___  _ __   __ _
// |  __| | | |/ _ \| '_ \ / _` |
// | |____| | | (_) | | | | (_| |
// |______|_|_|\___/|_| |_|\__,_|
//
//  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING
//  BUT NOT LIMITED  TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
//  NON INFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM,
//  DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package ntlm

import "encoding/binary"

// md4 is a straight RFC 1320 implementation, kept in-tree because NTOWF
// (the NT one-way function) requires it and the standard library dropped
// crypto/md4 before this module's Go version floor.
const (
	md4BlockSize = 64
)

// md4Sum computes the 16-byte MD4 digest of msg.
func md4Sum(msg []byte) [16]byte {
	h0, h1, h2, h3 := uint32(0x67452301), uint32(0xefcdab89), uint32(0x98badcfe), uint32(0x10325476)

	padded := md4Pad(msg)
	for off := 0; off < len(padded); off += md4BlockSize {
		block := padded[off : off+md4BlockSize]
		var x [16]uint32
		for i := 0; i < 16; i++ {
			x[i] = binary.LittleEndian.Uint32(block[i*4:])
		}
		a, b, c, d := h0, h1, h2, h3

		// Round 1: F, constant 0, shifts {3,7,11,19}
		s1 := [4]uint{3, 7, 11, 19}
		for i := 0; i < 16; i++ {
			k := i
			f := (b & c) | (^b & d)
			a, b, c, d = d, rotl32(a+f+x[k], s1[i%4]), b, c
		}

		// Round 2: G, constant 0x5A827999, shifts {3,5,9,13}
		s2 := [4]uint{3, 5, 9, 13}
		order2 := [16]int{0, 4, 8, 12, 1, 5, 9, 13, 2, 6, 10, 14, 3, 7, 11, 15}
		for i := 0; i < 16; i++ {
			k := order2[i]
			g := (b & c) | (b & d) | (c & d)
			a, b, c, d = d, rotl32(a+g+x[k]+0x5A827999, s2[i%4]), b, c
		}

		// Round 3: H, constant 0x6ED9EBA1, shifts {3,9,11,15}
		s3 := [4]uint{3, 9, 11, 15}
		order3 := [16]int{0, 8, 4, 12, 2, 10, 6, 14, 1, 9, 5, 13, 3, 11, 7, 15}
		for i := 0; i < 16; i++ {
			k := order3[i]
			h := b ^ c ^ d
			a, b, c, d = d, rotl32(a+h+x[k]+0x6ED9EBA1, s3[i%4]), b, c
		}

		h0 += a
		h1 += b
		h2 += c
		h3 += d
	}

	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:], h0)
	binary.LittleEndian.PutUint32(out[4:], h1)
	binary.LittleEndian.PutUint32(out[8:], h2)
	binary.LittleEndian.PutUint32(out[12:], h3)
	return out
}

func md4Pad(msg []byte) []byte {
	bitLen := uint64(len(msg)) * 8
	padded := append([]byte(nil), msg...)
	padded = append(padded, 0x80)
	for len(padded)%md4BlockSize != 56 {
		padded = append(padded, 0x00)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], bitLen)
	return append(padded, lenBuf[:]...)
}

func rotl32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}
