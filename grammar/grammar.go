package grammar

// Textual IR format. One function per file for now:
//
//	fn main {
//	  block @entry {
//	    %a: byte = arg #0
//	    %c: bool = lt %a, #10
//	    if %c then @small else @big
//	  }
//	  block @small { jump @join }
//	  block @big { jump @join }
//	  block @join {
//	    %p: byte = phi %x, %y
//	    return %p
//	  }
//	}
//
// Phi operands are positional: operand i belongs to the block's i-th
// predecessor, in the order the incoming edges appear in the file.
// Decimal literals are whole numbers; hex literals are raw fixed-point
// bit patterns.

type File struct {
	Funcs []*Func `@@*`
}

type Func struct {
	Name   string   `"fn" @Ident "{"`
	Blocks []*Block `@@* "}"`
}

type Block struct {
	Label  string   `"block" "@" @Ident "{"`
	Instrs []*Instr `@@* "}"`
}

type Instr struct {
	Assign *Assign `  @@`
	If     *If     `| @@`
	Jump   *Jump   `| @@`
	Ret    *Ret    `| @@`
}

type Assign struct {
	Name string     `"%" @Ident ":"`
	Type string     `@Ident "="`
	Op   string     `@Ident`
	Args []*Operand `[ @@ { "," @@ } ]`
}

type If struct {
	Cond *Operand `"if" @@`
	Then string   `"then" "@" @Ident`
	Else string   `"else" "@" @Ident`
}

type Jump struct {
	Target string `"jump" "@" @Ident`
}

type Ret struct {
	Value *Operand `"return" [ @@ ]`
}

type Operand struct {
	Ref *string `  "%" @Ident`
	Num *string `| "#" @Integer`
}
