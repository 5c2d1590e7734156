// Command stabledump inspects a stable-memory file.
//
// Usage:
//
//	stabledump info <file>
//	stabledump hex <file> [--offset N] [--length N]
//	stabledump regions <file>
package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Giulio2002/stablemem"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: stabledump <info|hex|regions> <file> [flags]")
	}

	mem, err := stablemem.OpenFileMemory(args[1])
	if err != nil {
		return err
	}
	defer mem.Close()

	switch args[0] {
	case "info":
		return cmdInfo(mem)
	case "hex":
		return cmdHex(mem, args[2:])
	case "regions":
		return cmdRegions(mem)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdInfo(mem *stablemem.FileMemory) error {
	pages := mem.Size()
	fmt.Printf("pages:  %d\n", pages)
	fmt.Printf("bytes:  %d\n", pages*stablemem.PageSize)
	if pages > 0 {
		var magic [3]byte
		mem.Read(0, magic[:])
		fmt.Printf("magic:  %q\n", magic[:])
	}
	return nil
}

func cmdHex(mem *stablemem.FileMemory, args []string) error {
	fs := flag.NewFlagSet("hex", flag.ContinueOnError)
	offset := fs.Uint64("offset", 0, "byte offset to dump from")
	length := fs.Uint64("length", 256, "number of bytes to dump")
	if err := fs.Parse(args); err != nil {
		return err
	}

	size := mem.Size() * stablemem.PageSize
	if *offset >= size {
		return fmt.Errorf("offset %d is past the end of the memory (%d bytes)", *offset, size)
	}
	if *offset+*length > size {
		*length = size - *offset
	}

	buf := make([]byte, *length)
	mem.Read(*offset, buf)
	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Printf("%08x  % x\n", *offset+uint64(i), buf[i:end])
	}
	return nil
}

func cmdRegions(mem *stablemem.FileMemory) error {
	if mem.Size() == 0 {
		return errors.New("empty memory")
	}

	var header [8]byte
	mem.Read(0, header[:])
	if string(header[:3]) != "MGR" {
		return fmt.Errorf("memory does not hold a memory manager (magic %q)", header[:3])
	}

	allocated := binary.LittleEndian.Uint16(header[4:6])
	bucketSize := binary.LittleEndian.Uint16(header[6:8])
	fmt.Printf("version:     %d\n", header[3])
	fmt.Printf("buckets:     %d allocated, %d pages each\n", allocated, bucketSize)

	var sizes [8]byte
	for id := 0; id < 255; id++ {
		mem.Read(40+uint64(id)*8, sizes[:])
		if pages := binary.LittleEndian.Uint64(sizes[:]); pages > 0 {
			fmt.Printf("memory %3d:  %d pages\n", id, pages)
		}
	}
	return nil
}
