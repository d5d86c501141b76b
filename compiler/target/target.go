// Package target holds the platform ABI description consumed by the type
// system and the lowering stage: basic type sizes and alignments, pointer
// width, endianness, the unwind model and the register set recognized in asm
// clobber lists. The tables are configuration data, not code: they can be
// replaced wholesale from a TOML file.
package target

import (
	"os"

	"github.com/pelletier/go-toml"
	"tlog.app/go/errors"
)

type (
	Layout struct {
		Size  int64 `toml:"size"`
		Align int64 `toml:"align"`
	}

	Target struct {
		Name      string `toml:"name"`
		CPU       string `toml:"cpu"`
		PtrSize   int64  `toml:"ptr_size"`
		PtrAlign  int64  `toml:"ptr_align"`
		BigEndian bool   `toml:"big_endian"`

		// Unwind is the exception unwinding strategy: "dwarf" or "sjlj".
		Unwind string `toml:"unwind"`

		// InlineAsm reports whether the target supports inline assembler.
		InlineAsm bool `toml:"inline_asm"`

		// OneOnly reports whether the object format supports one-only
		// (comdat) emission; decides the "auto" template emission policy.
		OneOnly bool `toml:"one_only"`

		// Basic maps basic type names (int8, float64, ...) to layouts.
		Basic map[string]Layout `toml:"basic"`

		// Registers are the register names accepted in asm clobber lists.
		Registers []string `toml:"registers"`

		// StdDir is the standard library module directory; MultilibDir is
		// appended to it when set (multilib-style suffixing).
		StdDir      string `toml:"std_dir"`
		MultilibDir string `toml:"multilib_dir"`
	}
)

// Default is the x86-64 SysV description.
func Default() *Target {
	return &Target{
		Name:      "x86_64-linux",
		CPU:       "X86_64",
		PtrSize:   8,
		PtrAlign:  8,
		BigEndian: false,
		Unwind:    "dwarf",
		InlineAsm: true,
		OneOnly:   true,
		Basic: map[string]Layout{
			"void":    {0, 1},
			"bool":    {1, 1},
			"char":    {1, 1},
			"int8":    {1, 1},
			"uint8":   {1, 1},
			"int16":   {2, 2},
			"uint16":  {2, 2},
			"int32":   {4, 4},
			"uint32":  {4, 4},
			"int64":   {8, 8},
			"uint64":  {8, 8},
			"float32": {4, 4},
			"float64": {8, 8},
		},
		Registers: []string{
			"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
			"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
			"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
			"cc", "flags",
		},
		StdDir: "/usr/lib/dusk",
	}
}

// Load reads a TOML target description, overlaying it on the default tables
// so partial files only need to state what differs.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read target file")
	}

	t := Default()

	err = toml.Unmarshal(data, t)
	if err != nil {
		return nil, errors.Wrap(err, "parse target file")
	}

	return t, nil
}

// IsRegister reports whether name is a known clobberable register.
func (t *Target) IsRegister(name string) bool {
	for _, r := range t.Registers {
		if r == name {
			return true
		}
	}

	return false
}

// StdPath is the standard library search directory with the multilib suffix
// applied.
func (t *Target) StdPath() string {
	if t.MultilibDir != "" {
		return t.StdDir + "/" + t.MultilibDir
	}

	return t.StdDir
}

// Predefined seeds the version-condition evaluator (spec-level feature
// flags). Exactly one endianness token is set.
func (t *Target) Predefined() []string {
	vers := []string{"Dusk", "Dusk_V1"}

	if t.CPU != "" {
		vers = append(vers, t.CPU)
	}

	if t.BigEndian {
		vers = append(vers, "BigEndian")
	} else {
		vers = append(vers, "LittleEndian")
	}

	if t.Unwind == "sjlj" {
		vers = append(vers, "SjLj_Exceptions")
	}

	if t.InlineAsm {
		vers = append(vers, "D_InlineAsm")
		if t.CPU != "" {
			vers = append(vers, "D_InlineAsm_"+t.CPU)
		}
	}

	vers = append(vers, "all")

	return vers
}
