//go:build ignore

// gen.go regenerates wire.go from the declarative type tree below.
// Run with: go run ./pkg/parcelgen/sample/gen.go
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/gobinder/pkg/parcelgen"
)

func main() {
	five := int32(5)

	src, err := parcelgen.Generate("sample", []parcelgen.TypeDef{
		{
			Name: "UserInfo",
			Kind: parcelgen.KindStruct,
			Fields: []parcelgen.FieldDef{
				{Name: "uid", Type: "u32"},
				{Name: "name", Type: "str16"},
				{Name: "active", Type: "bool"},
			},
		},
		{
			Name: "Event",
			Kind: parcelgen.KindUnion,
			Variants: []parcelgen.VariantDef{
				{Name: "Started", Style: parcelgen.StyleUnit},
				{Name: "Progress", Style: parcelgen.StyleNewtype, Discriminator: &five,
					Fields: []parcelgen.FieldDef{{Type: "u32"}}},
				{Name: "Finished", Style: parcelgen.StyleStruct,
					Fields: []parcelgen.FieldDef{
						{Name: "code", Type: "i32"},
						{Name: "message", Type: "str16"},
					}},
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile("pkg/parcelgen/sample/wire.go", src, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
}
