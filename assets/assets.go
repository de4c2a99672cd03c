package assets

import "embed"

//go:embed *.html
var Dir embed.FS

//go:embed system_instruction.txt
var SystemInstruction string
