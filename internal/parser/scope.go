package parser

import "github.com/xirelogy/go-lunar/internal/ast"

const (
	maxLocals   = 200
	maxUpvalues = 255
)

// funcState tracks locals and upvalues for one function being parsed.
// Active locals form a stack: the i-th active local lives in slot i, so
// slots are dense and reused once a block closes.
type funcState struct {
	enclosing *funcState
	info      *ast.FuncInfo
	actives   []*ast.LocalVar
	block     *blockScope
	upIndex   map[upKey]int
}

type upKey struct {
	local *ast.LocalVar
	index int
}

type blockScope struct {
	parent      *blockScope
	startActive int
	isLoop      bool
	node        *ast.Block
}

func newFuncState(enclosing *funcState) *funcState {
	return &funcState{
		enclosing: enclosing,
		info:      &ast.FuncInfo{},
		upIndex:   make(map[upKey]int),
	}
}

func (fs *funcState) openBlock(node *ast.Block, isLoop bool) *blockScope {
	b := &blockScope{parent: fs.block, startActive: len(fs.actives), isLoop: isLoop, node: node}
	if node != nil {
		node.StartSlot = len(fs.actives)
	}
	fs.block = b
	return b
}

func (fs *funcState) closeBlock() {
	fs.actives = fs.actives[:fs.block.startActive]
	fs.block = fs.block.parent
}

// newLocal creates a local for the n-th name of a declaration that is not
// visible until activate is called.
func (fs *funcState) newLocal(name string, n int) (*ast.LocalVar, bool) {
	slot := len(fs.actives) + n
	if slot >= maxLocals {
		return nil, false
	}
	return &ast.LocalVar{Name: name, Slot: slot}, true
}

func (fs *funcState) activate(locals ...*ast.LocalVar) {
	for _, lv := range locals {
		fs.actives = append(fs.actives, lv)
		if fs.block != nil && fs.block.node != nil {
			fs.block.node.Locals = append(fs.block.node.Locals, lv)
		}
	}
	fs.reserve(0)
}

// reserve records that n slots above the active locals are in use.
func (fs *funcState) reserve(n int) {
	if used := len(fs.actives) + n; used > fs.info.MaxSlots {
		fs.info.MaxSlots = used
	}
}

func (fs *funcState) inLoop() bool {
	for b := fs.block; b != nil; b = b.parent {
		if b.isLoop {
			return true
		}
	}
	return false
}

func (fs *funcState) findLocal(name string) *ast.LocalVar {
	for i := len(fs.actives) - 1; i >= 0; i-- {
		if fs.actives[i].Name == name {
			return fs.actives[i]
		}
	}
	return nil
}

// resolve binds a name to a local slot, an upvalue, or the global table.
func (fs *funcState) resolve(name string) (ast.Ref, bool) {
	if lv := fs.findLocal(name); lv != nil {
		return ast.Ref{Kind: ast.RefLocal, Index: lv.Slot, Local: lv}, true
	}
	idx, ok, full := fs.resolveUpvalue(name)
	if full {
		return ast.Ref{}, false
	}
	if ok {
		return ast.Ref{Kind: ast.RefUpvalue, Index: idx}, true
	}
	return ast.Ref{Kind: ast.RefGlobal}, true
}

// resolveUpvalue walks enclosing functions to find a name, capturing it if
// needed. full reports that a function ran out of upvalue slots.
func (fs *funcState) resolveUpvalue(name string) (int, bool, bool) {
	if fs.enclosing == nil {
		return 0, false, false
	}
	if lv := fs.enclosing.findLocal(name); lv != nil {
		lv.Captured = true
		idx, ok := fs.addUpvalue(upKey{local: lv}, ast.UpvalueDesc{Name: name, FromLocal: true, Index: lv.Slot})
		return idx, ok, !ok
	}
	outer, ok, full := fs.enclosing.resolveUpvalue(name)
	if !ok || full {
		return 0, false, full
	}
	idx, ok := fs.addUpvalue(upKey{index: outer}, ast.UpvalueDesc{Name: name, Index: outer})
	return idx, ok, !ok
}

func (fs *funcState) addUpvalue(key upKey, desc ast.UpvalueDesc) (int, bool) {
	if idx, ok := fs.upIndex[key]; ok {
		return idx, true
	}
	if len(fs.info.Upvalues) >= maxUpvalues {
		return 0, false
	}
	fs.info.Upvalues = append(fs.info.Upvalues, desc)
	idx := len(fs.info.Upvalues) - 1
	fs.upIndex[key] = idx
	return idx, true
}
