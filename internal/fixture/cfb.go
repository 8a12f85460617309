// Package fixture builds small, well-formed binary documents for tests.
package fixture

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	sectorSize   = 512
	streamCutoff = 4096 // smaller streams would have to live in the mini stream

	freeSect   = 0xFFFFFFFF
	endOfChain = 0xFFFFFFFE
	fatSect    = 0xFFFFFFFD
	noStream   = 0xFFFFFFFF
)

// Stream is one top-level stream of a compound file.
type Stream struct {
	Name string
	Data []byte
}

// CompoundFile lays out a version 3 OLE2 compound file holding streams under
// the root storage. Every stream is zero-padded to the mini stream cutoff so
// the file needs only the regular FAT.
func CompoundFile(streams ...Stream) []byte {
	dirEntries := 1 + len(streams)
	dirSectors := (dirEntries*128 + sectorSize - 1) / sectorSize

	padded := make([][]byte, len(streams))
	streamSectors := 0
	for i, s := range streams {
		n := max(len(s.Data), streamCutoff)
		n = (n + sectorSize - 1) / sectorSize * sectorSize
		padded[i] = make([]byte, n)
		copy(padded[i], s.Data)
		streamSectors += n / sectorSize
	}

	fatSectors := 1
	for (fatSectors+dirSectors+streamSectors)*4 > fatSectors*sectorSize {
		fatSectors++
	}
	total := fatSectors + dirSectors + streamSectors

	fat := make([]uint32, fatSectors*sectorSize/4)
	for i := range fat {
		fat[i] = freeSect
	}
	for i := 0; i < fatSectors; i++ {
		fat[i] = fatSect
	}
	chain := func(start, n int) {
		for i := start; i < start+n-1; i++ {
			fat[i] = uint32(i + 1)
		}
		fat[start+n-1] = endOfChain
	}
	dirStart := fatSectors
	chain(dirStart, dirSectors)
	starts := make([]int, len(streams))
	next := dirStart + dirSectors
	for i, p := range padded {
		starts[i] = next
		chain(next, len(p)/sectorSize)
		next += len(p) / sectorSize
	}

	out := make([]byte, (1+total)*sectorSize)
	le := binary.LittleEndian

	hdr := out[:sectorSize]
	copy(hdr, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(hdr[24:], 0x003E)
	le.PutUint16(hdr[26:], 0x0003)
	le.PutUint16(hdr[28:], 0xFFFE)
	le.PutUint16(hdr[30:], 0x0009)
	le.PutUint16(hdr[32:], 0x0006)
	le.PutUint32(hdr[44:], uint32(fatSectors))
	le.PutUint32(hdr[48:], uint32(dirStart))
	le.PutUint32(hdr[56:], streamCutoff)
	le.PutUint32(hdr[60:], endOfChain)
	le.PutUint32(hdr[68:], endOfChain)
	for i := 0; i < 109; i++ {
		v := uint32(freeSect)
		if i < fatSectors {
			v = uint32(i)
		}
		le.PutUint32(hdr[76+4*i:], v)
	}

	sector := func(n int) []byte { return out[(n+1)*sectorSize : (n+2)*sectorSize] }
	for i := 0; i < fatSectors; i++ {
		s := sector(i)
		for j := 0; j < sectorSize/4; j++ {
			le.PutUint32(s[4*j:], fat[i*sectorSize/4+j])
		}
	}

	dir := out[(dirStart+1)*sectorSize : (dirStart+1+dirSectors)*sectorSize]
	for i := 0; i < dirSectors*sectorSize/128; i++ {
		e := dir[i*128 : (i+1)*128]
		le.PutUint32(e[68:], noStream)
		le.PutUint32(e[72:], noStream)
		le.PutUint32(e[76:], noStream)
	}
	root := dir[:128]
	putName(root, "Root Entry")
	root[66] = 5
	root[67] = 1
	le.PutUint32(root[116:], endOfChain)
	if len(streams) > 0 {
		le.PutUint32(root[76:], 1)
	}
	// siblings hang off a right-leaning chain
	for i, s := range streams {
		e := dir[(i+1)*128 : (i+2)*128]
		putName(e, s.Name)
		e[66] = 2
		e[67] = 1
		if i+1 < len(streams) {
			le.PutUint32(e[72:], uint32(i+2))
		}
		le.PutUint32(e[116:], uint32(starts[i]))
		le.PutUint32(e[120:], uint32(len(padded[i])))
	}

	for i, p := range padded {
		copy(out[(starts[i]+1)*sectorSize:], p)
	}
	return out
}

func putName(e []byte, name string) {
	u := utf16.Encode([]rune(name))
	if len(u) > 31 {
		u = u[:31]
	}
	for i, c := range u {
		binary.LittleEndian.PutUint16(e[2*i:], c)
	}
	binary.LittleEndian.PutUint16(e[64:], uint16(2*(len(u)+1)))
}

// UTF16 encodes s as UTF-16LE without a byte order mark.
func UTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(u))
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}
