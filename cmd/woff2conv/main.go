package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tdewolff/argp"
	"github.com/tdewolff/woff2"
)

func main() {
	cmd := argp.New("Convert WOFF2 files to TTF, OTF, or TTC - Taco de Wolff")
	cmd.AddCmd(&Decompress{}, "decompress", "Convert WOFF2 to TTF/OTF/TTC")
	cmd.Parse()
}

type Decompress struct {
	Force  bool   `short:"f" desc:"Force overwriting existing files."`
	Output string `short:"o" desc:"Output font file (TTF, OTF, or TTC). Derived from the input name when empty."`
	Input  string `index:"0" desc:"Input WOFF2 file."`
}

func (cmd *Decompress) Run() error {
	b, err := os.ReadFile(cmd.Input)
	if err != nil {
		return fmt.Errorf("%v: %v", cmd.Input, err)
	}

	sfnt, err := woff2.ParseWOFF2(b)
	if err != nil {
		return fmt.Errorf("%v: %v", cmd.Input, err)
	}

	output := cmd.Output
	if output == "" {
		output = strings.TrimSuffix(cmd.Input, ".woff2") + extension(sfnt)
		if output == cmd.Input {
			return fmt.Errorf("cannot derive output filename from %v", cmd.Input)
		}
	}
	if !cmd.Force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%v: file already exists, use -f to overwrite", output)
		}
	}
	return os.WriteFile(output, sfnt, 0644)
}

func extension(sfnt []byte) string {
	switch string(sfnt[:4]) {
	case "OTTO":
		return ".otf"
	case "ttcf":
		return ".ttc"
	}
	return ".ttf"
}
