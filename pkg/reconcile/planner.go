// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/metrics"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/google/uuid"
)

// MaxBackupNames is the number of name~bakNN~ candidates tried.
const MaxBackupNames = 100

// Options configures planning.
type Options struct {
	// ConflictKind is the error kind of slot and layout conflicts.
	ConflictKind wcerr.Kind
	Analyzer     portability.Analyzer
	// IgnoreWarnings keeps portability warnings from failing the plan.
	IgnoreWarnings bool
	// Backups moves user edits aside before they are overwritten.
	Backups bool
	// MaxBackups limits the backup names tried per entry; 0 or anything
	// above MaxBackupNames means MaxBackupNames.
	MaxBackups int
	// CaseInsensitive refuses layouts whose names differ only by case.
	CaseInsensitive bool
	// Parking is the scratch directory entries are parked under. It is
	// created on first use and removed when empty.
	Parking string
}

// record is one id taking part in a reconciliation.
type record struct {
	id   tree.ID
	kind objstore.Kind
	base *diff.Item // baseline side, nil for entries new since the baseline
	src  *diff.Item // where the entry is on disk now, nil when absent
	dst  *diff.Item // where it must be afterwards, nil when it must not exist

	// untracked entries stay where they are unless a tracked entry needs
	// their slot, in which case they are displaced to a backup name.
	untracked bool
	fin       *final // nil leaves the tree alone

	origin    string // absolute source path at plan time
	contested bool
	cycle     bool
	displace  bool
}

func (r *record) moves() bool {
	return r.src != nil && r.dst != nil && (r.src.Parent != r.dst.Parent || r.src.Name != r.dst.Name)
}

func (r *record) stays() bool {
	return r.src != nil && r.dst != nil && !r.moves()
}

type slot struct {
	parent tree.ID
	name   string
}

// loc is the simulated position of an entry while actions are planned.
type loc struct {
	parent tree.ID
	name   string
	parked string // absolute parking path; parent and name are unused
}

type planner struct {
	t     *tree.Tree
	fs    fsservices.FSAdapter
	store objstore.Store
	opts  Options

	recs  map[tree.ID]*record
	order []tree.ID

	dirs     map[tree.ID]map[string]tree.ID
	pos      map[tree.ID]loc
	kinds    map[tree.ID]objstore.Kind
	claims   map[slot]tree.ID
	reserved map[slot]bool

	plan   *Plan
	issues []string
}

func build(t *tree.Tree, fsys fsservices.FSAdapter, operation string, recs []*record, opts Options) (*Plan, error) {
	p := &planner{
		t:        t,
		fs:       fsys,
		store:    t.Store(),
		opts:     opts,
		recs:     make(map[tree.ID]*record, len(recs)),
		dirs:     map[tree.ID]map[string]tree.ID{},
		pos:      map[tree.ID]loc{},
		kinds:    map[tree.ID]objstore.Kind{},
		claims:   map[slot]tree.ID{},
		reserved: map[slot]bool{},
	}
	for _, r := range recs {
		p.recs[r.id] = r
		p.order = append(p.order, r.id)
	}
	sort.Strings(p.order)
	p.plan = &Plan{
		Operation: operation,
		parking:   opts.Parking,
		fs:        fsys,
		store:     p.store,
		t:         t,
	}

	if err := p.bind(); err != nil {
		return nil, err
	}
	p.collisions()
	p.feasibility()
	if len(p.issues) > 0 {
		return nil, wcerr.WithIssues(opts.ConflictKind, fmt.Sprintf("%d conflicting entries", len(p.issues)), p.issues)
	}
	if err := p.names(); err != nil {
		return nil, err
	}
	if err := p.park(); err != nil {
		return nil, err
	}
	p.skeleton()
	if err := p.place(); err != nil {
		return nil, err
	}
	p.removals()
	if err := p.content(); err != nil {
		return nil, err
	}
	p.finals()
	return p.plan, nil
}

// bind loads every directory an entry leaves, enters or empties, and
// records which id owns each name there.
func (p *planner) bind() error {
	for _, id := range p.order {
		r := p.recs[id]
		if r.src != nil {
			if err := p.populate(r.src.Parent); err != nil {
				return err
			}
		}
		if r.dst != nil {
			if err := p.populate(r.dst.Parent); err != nil {
				return err
			}
		}
		if r.kind == objstore.KindDirectory && r.src != nil && r.dst == nil {
			if err := p.populate(r.id); err != nil {
				return err
			}
		}
	}
	for _, id := range p.order {
		r := p.recs[id]
		if r.src == nil {
			continue
		}
		if p.dirs[r.src.Parent][r.src.Name] != id {
			return fmt.Errorf("reconcile: %s is not at %s in the working tree", id, r.src.Name)
		}
		r.origin = p.abs(id)
	}
	return nil
}

func (p *planner) populate(dir tree.ID) error {
	if _, ok := p.dirs[dir]; ok {
		return nil
	}
	names := map[string]tree.ID{}
	p.dirs[dir] = names
	n, ok := p.t.Node(dir)
	if !ok || !n.IsDir() || !n.OnDisk() {
		return nil
	}
	kids, err := p.t.Children(dir)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if !k.OnDisk() {
			continue
		}
		if _, taken := names[k.Name()]; taken {
			continue
		}
		names[k.Name()] = k.ID
		p.pos[k.ID] = loc{parent: dir, name: k.Name()}
	}
	list, err := p.fs.ListChildren(p.abs(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list %s: %w", p.abs(dir), err)
	}
	for _, e := range list.Entries {
		if _, taken := names[e.Name]; taken {
			continue
		}
		id := "disk:" + uuid.NewString()
		names[e.Name] = id
		p.pos[id] = loc{parent: dir, name: e.Name}
		p.kinds[id] = e.Kind
	}
	return nil
}

func (p *planner) where(id tree.ID) (loc, bool) {
	if l, ok := p.pos[id]; ok {
		return l, true
	}
	n, ok := p.t.Node(id)
	if !ok || id == p.t.RootID() {
		return loc{}, false
	}
	return loc{parent: n.Parent, name: n.Name()}, true
}

// abs is the simulated absolute path of id at this point of the plan.
func (p *planner) abs(id tree.ID) string {
	if id == p.t.RootID() {
		return p.fs.Root()
	}
	l, ok := p.where(id)
	if !ok {
		return ""
	}
	if l.parked != "" {
		return l.parked
	}
	return filepath.Join(p.abs(l.parent), l.name)
}

func (p *planner) slotAbs(s slot) string {
	return filepath.Join(p.abs(s.parent), s.name)
}

func (p *planner) rel(abs string) string {
	rel, err := p.fs.Rel(abs)
	if err != nil {
		return abs
	}
	return rel
}

func (p *planner) occupant(s slot) tree.ID {
	return p.dirs[s.parent][s.name]
}

func (p *planner) vacate(id tree.ID) {
	l, ok := p.pos[id]
	if !ok || l.parked != "" {
		return
	}
	if p.dirs[l.parent][l.name] == id {
		delete(p.dirs[l.parent], l.name)
	}
}

func (p *planner) occupy(id tree.ID, s slot) {
	if p.dirs[s.parent] == nil {
		p.dirs[s.parent] = map[string]tree.ID{}
	}
	p.dirs[s.parent][s.name] = id
	p.pos[id] = loc{parent: s.parent, name: s.name}
}

func (p *planner) parked(id tree.ID) bool {
	l, ok := p.pos[id]
	return ok && l.parked != ""
}

// inside reports whether x currently lies in the subtree of anc.
func (p *planner) inside(x, anc tree.ID) bool {
	for cur, steps := x, 0; cur != "" && steps <= len(p.pos)+p.t.Len(); steps++ {
		if cur == anc {
			return true
		}
		if cur == p.t.RootID() {
			return false
		}
		l, ok := p.where(cur)
		if !ok || l.parked != "" {
			return false
		}
		cur = l.parent
	}
	return false
}

func (p *planner) depth(id tree.ID) int {
	d := 0
	for cur := id; cur != p.t.RootID() && d <= len(p.pos)+p.t.Len(); d++ {
		l, ok := p.where(cur)
		if !ok || l.parked != "" {
			break
		}
		cur = l.parent
	}
	return d
}

func (p *planner) finalParent(id tree.ID) (tree.ID, bool) {
	if r := p.recs[id]; r != nil {
		if r.dst == nil {
			return "", false
		}
		return r.dst.Parent, true
	}
	n, ok := p.t.Node(id)
	if !ok {
		return "", false
	}
	return n.Parent, true
}

func (p *planner) finalName(id tree.ID) string {
	if r := p.recs[id]; r != nil && r.dst != nil {
		return r.dst.Name
	}
	if n, ok := p.t.Node(id); ok {
		return n.Name()
	}
	return id
}

func (p *planner) finalDepth(id tree.ID) int {
	d := 0
	for cur := id; cur != p.t.RootID() && d <= len(p.recs)+p.t.Len(); d++ {
		parent, ok := p.finalParent(cur)
		if !ok {
			break
		}
		cur = parent
	}
	return d
}

// finalRel is the repo-relative path of id in the target layout.
func (p *planner) finalRel(id tree.ID) string {
	var parts []string
	for cur, steps := id, 0; cur != p.t.RootID() && steps <= len(p.recs)+p.t.Len(); steps++ {
		parts = append(parts, p.finalName(cur))
		parent, ok := p.finalParent(cur)
		if !ok {
			break
		}
		cur = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (p *planner) conflict(path, format string, args ...any) {
	p.issues = append(p.issues, fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...)))
}

// collisions resolves every target slot that is currently occupied by
// another entry. An occupant that is removed is parked; one that moves
// elsewhere is ordered by place, which parks only to break a cycle.
func (p *planner) collisions() {
	for _, id := range p.order {
		r := p.recs[id]
		if r.dst == nil || r.untracked {
			continue
		}
		s := slot{r.dst.Parent, r.dst.Name}
		if other, ok := p.claims[s]; ok {
			p.conflict(p.finalRel(id), "also the target of %s", other)
			continue
		}
		p.claims[s] = id

		occ := p.occupant(s)
		if occ == "" || occ == id {
			continue
		}
		if o := p.recs[occ]; o != nil {
			switch {
			case o.untracked:
				o.displace = true
			case o.stays():
				p.conflict(p.finalRel(id), "occupied by %s", p.rel(p.slotAbs(s)))
			case o.dst == nil:
				o.contested = true
			}
			continue
		}
		if n, ok := p.t.Node(occ); ok && n.State != tree.StateFound {
			p.conflict(p.finalRel(id), "occupied by %s, which is not part of this operation", p.rel(p.slotAbs(s)))
			continue
		}
		p.adopt(occ)
	}
}

// adopt turns an untracked occupant into a record so it can be displaced.
func (p *planner) adopt(id tree.ID) {
	l := p.pos[id]
	r := &record{id: id, kind: p.kinds[id], untracked: true, displace: true}
	if n, ok := p.t.Node(id); ok {
		cur := diff.CurrentItem(n)
		r.kind = n.Kind
		r.src = &cur
		fcur := cur
		r.fin = &final{id: id, kind: n.Kind, current: &fcur, state: tree.StateFound}
	} else {
		r.src = &diff.Item{Parent: l.parent, Name: l.name, Kind: r.kind}
	}
	dst := *r.src
	r.dst = &dst
	r.origin = p.abs(id)
	p.recs[id] = r
	p.order = append(p.order, id)
}

// presentAfter reports whether dir exists as a tracked directory once the
// plan has run.
func (p *planner) presentAfter(dir tree.ID) bool {
	if dir == p.t.RootID() {
		return true
	}
	if r := p.recs[dir]; r != nil {
		return r.dst != nil && !r.untracked && r.kind == objstore.KindDirectory
	}
	n, ok := p.t.Node(dir)
	return ok && n.IsDir() && n.OnDisk() && n.IsTracked()
}

func (p *planner) feasibility() {
	for _, id := range p.order {
		r := p.recs[id]
		if r.dst == nil || r.untracked {
			continue
		}
		if !p.presentAfter(r.dst.Parent) {
			p.conflict(p.finalRel(id), "its directory will not exist")
		}
	}

	for _, id := range p.order {
		r := p.recs[id]
		if r.kind != objstore.KindDirectory || r.src == nil || r.dst != nil || r.untracked {
			continue
		}
		names := make([]string, 0, len(p.dirs[id]))
		for name := range p.dirs[id] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			occ := p.dirs[id][name]
			if o := p.recs[occ]; o != nil && !o.untracked {
				if o.dst == nil || o.dst.Parent != id {
					continue
				}
			}
			if _, ok := p.t.Node(occ); !ok && p.recs[occ] == nil {
				// Ignored content; rmdir reports it.
				continue
			}
			p.conflict(p.rel(r.origin), "directory to be removed still holds %s", name)
		}
	}

	for _, id := range p.order {
		r := p.recs[id]
		if r.kind != objstore.KindDirectory || r.dst == nil || r.untracked {
			continue
		}
		seen := map[tree.ID]bool{}
		for cur := r.dst.Parent; cur != p.t.RootID() && !seen[cur]; {
			if cur == id {
				p.conflict(p.finalRel(id), "target layout places the directory inside itself")
				break
			}
			seen[cur] = true
			next, ok := p.finalParent(cur)
			if !ok {
				break
			}
			cur = next
		}
	}

	for _, id := range p.order {
		r := p.recs[id]
		if r.kind == objstore.KindDirectory && r.moves() && !r.untracked && p.inside(r.dst.Parent, id) {
			r.cycle = true
			if n, ok := p.t.Node(id); ok {
				n.Flags |= tree.FlagParkedForCycle
			}
		}
	}
}

// names runs the name-safety analyzer over every directory receiving a
// new or renamed entry.
func (p *planner) names() error {
	arrivals := map[tree.ID][]*record{}
	for _, id := range p.order {
		r := p.recs[id]
		if r.dst == nil || r.untracked {
			continue
		}
		arrivals[r.dst.Parent] = append(arrivals[r.dst.Parent], r)
	}
	dirs := make([]tree.ID, 0, len(arrivals))
	for d := range arrivals {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return p.finalRel(dirs[i]) < p.finalRel(dirs[j]) })

	var warnings []portability.Warning
	var folded []string
	for _, dir := range dirs {
		var existing, candidates []string
		for name, occ := range p.dirs[dir] {
			if o := p.recs[occ]; o != nil && (!o.untracked || o.displace) {
				continue
			}
			existing = append(existing, name)
		}
		for _, r := range arrivals[dir] {
			if r.base != nil && r.base.Parent == dir && r.base.Name == r.dst.Name {
				existing = append(existing, r.dst.Name)
				continue
			}
			candidates = append(candidates, r.dst.Name)
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Strings(existing)
		sort.Strings(candidates)
		rel := ""
		if dir != p.t.RootID() {
			rel = p.finalRel(dir)
		}
		warnings = append(warnings, p.opts.Analyzer.CheckDir(rel, existing, candidates)...)
		if p.opts.CaseInsensitive {
			for _, w := range (portability.Analyzer{}).CheckDir(rel, existing, candidates) {
				if w.Flags&portability.FlagCollisionCase != 0 {
					folded = append(folded, w.String())
				}
			}
		}
	}
	if len(folded) > 0 {
		return wcerr.WithIssues(wcerr.KindNotImplemented, "names that differ only by case on a case-insensitive filesystem", folded)
	}
	if len(warnings) == 0 {
		return nil
	}
	portability.SortWarnings(warnings)
	for _, w := range warnings {
		metrics.RecordPortabilityWarning(w.Flags.Names())
	}
	if !p.opts.IgnoreWarnings {
		issues := make([]string, 0, len(warnings))
		for _, w := range warnings {
			issues = append(issues, w.String())
		}
		return wcerr.WithIssues(wcerr.KindPortabilityWarning, "unsafe names in the target layout", issues)
	}
	p.plan.Warnings = warnings
	p.t.Warn(warnings...)
	return nil
}

func (p *planner) emit(a Action) {
	p.plan.Actions = append(p.plan.Actions, a)
}

// backupName picks a free name~bakNN~ in dir.
func (p *planner) backupName(dir tree.ID, name string) (string, error) {
	limit := p.opts.MaxBackups
	if limit <= 0 || limit > MaxBackupNames {
		limit = MaxBackupNames
	}
	for i := 0; i < limit; i++ {
		cand := fmt.Sprintf("%s~bak%02d~", name, i)
		s := slot{dir, cand}
		if p.reserved[s] || p.occupant(s) != "" {
			continue
		}
		if _, claimed := p.claims[s]; claimed {
			continue
		}
		p.reserved[s] = true
		return cand, nil
	}
	return "", wcerr.Newf(wcerr.KindTooManyBackupNames, p.rel(p.slotAbs(slot{dir, name})), "%d backup names in use", limit)
}

// park displaces untracked occupants and moves contested entries into
// the parking lot, deepest first.
func (p *planner) park() error {
	for _, id := range p.order {
		r := p.recs[id]
		if !r.displace {
			continue
		}
		l := p.pos[id]
		name, err := p.backupName(l.parent, l.name)
		if err != nil {
			return err
		}
		from := p.abs(id)
		p.vacate(id)
		p.occupy(id, slot{l.parent, name})
		p.emit(Action{Kind: ActDisplace, ID: id, EntryKind: r.kind, From: from, To: p.abs(id)})
		if r.fin != nil {
			r.fin.current.Name = name
		}
	}

	var lot []*record
	for _, id := range p.order {
		if r := p.recs[id]; r.contested || r.cycle {
			lot = append(lot, r)
		}
	}
	sort.SliceStable(lot, func(i, j int) bool {
		di, dj := p.depth(lot[i].id), p.depth(lot[j].id)
		if di != dj {
			return di > dj
		}
		return lot[i].id < lot[j].id
	})
	for _, r := range lot {
		p.parkOne(r)
	}
	return nil
}

func (p *planner) parkOne(r *record) {
	from := p.abs(r.id)
	to := filepath.Join(p.opts.Parking, uuid.NewString())
	p.vacate(r.id)
	p.pos[r.id] = loc{parked: to}
	p.emit(Action{Kind: ActPark, ID: r.id, EntryKind: r.kind, From: from, To: to})
}

// skeleton creates the directories that exist nowhere yet, parents first.
func (p *planner) skeleton() {
	var mk []*record
	for _, id := range p.order {
		r := p.recs[id]
		if r.kind == objstore.KindDirectory && r.src == nil && r.dst != nil {
			mk = append(mk, r)
		}
	}
	sort.SliceStable(mk, func(i, j int) bool {
		di, dj := p.finalDepth(mk[i].id), p.finalDepth(mk[j].id)
		if di != dj {
			return di < dj
		}
		return mk[i].id < mk[j].id
	})
	for _, r := range mk {
		p.occupy(r.id, slot{r.dst.Parent, r.dst.Name})
		p.emit(Action{Kind: ActMkdir, ID: r.id, EntryKind: r.kind, To: p.abs(r.id)})
	}
}

func (p *planner) ready(r *record) bool {
	if occ := p.occupant(slot{r.dst.Parent, r.dst.Name}); occ != "" && occ != r.id {
		return false
	}
	if r.kind == objstore.KindDirectory && r.src != nil && p.inside(r.dst.Parent, r.id) {
		return false
	}
	return true
}

// place moves every entry to its target slot and creates missing files.
// Directories parked to break a cycle go last.
func (p *planner) place() error {
	var ordinary, deferred []*record
	for _, id := range p.order {
		r := p.recs[id]
		if r.dst == nil || r.untracked {
			continue
		}
		switch {
		case r.src == nil && r.kind != objstore.KindDirectory:
		case r.src != nil && (r.moves() || p.parked(id)):
		default:
			continue
		}
		if r.cycle {
			deferred = append(deferred, r)
		} else {
			ordinary = append(ordinary, r)
		}
	}
	pending := append(ordinary, deferred...)

	for len(pending) > 0 {
		var rest []*record
		for _, r := range pending {
			if !p.ready(r) {
				rest = append(rest, r)
				continue
			}
			p.placeOne(r)
		}
		if len(rest) < len(pending) {
			pending = rest
			continue
		}
		stuck := true
		for _, r := range rest {
			if r.src != nil && !p.parked(r.id) {
				p.parkOne(r)
				stuck = false
				break
			}
		}
		if stuck {
			return fmt.Errorf("reconcile: cannot order %d placements, first is %s", len(rest), p.finalRel(rest[0].id))
		}
		pending = rest
	}
	return nil
}

func (p *planner) placeOne(r *record) {
	s := slot{r.dst.Parent, r.dst.Name}
	if r.src == nil {
		p.occupy(r.id, s)
		to := p.abs(r.id)
		p.emit(Action{Kind: ActWrite, ID: r.id, EntryKind: r.kind, To: to, Hash: r.dst.Hash})
		if r.dst.Attrs != 0 || r.dst.XAttrHash != "" {
			p.emit(p.attrsAction(r, to))
		}
		return
	}
	from := p.abs(r.id)
	p.vacate(r.id)
	p.occupy(r.id, s)
	p.emit(Action{Kind: ActMove, ID: r.id, EntryKind: r.kind, From: from, To: p.abs(r.id)})
}

func (p *planner) attrsAction(r *record, path string) Action {
	return Action{
		Kind:      ActAttrs,
		ID:        r.id,
		EntryKind: r.kind,
		To:        path,
		Attrs:     r.dst.Attrs,
		XAttrHash: r.dst.XAttrHash,
	}
}

// removals deletes files first, then directories deepest first.
func (p *planner) removals() {
	var dirs []*record
	for _, id := range p.order {
		r := p.recs[id]
		if r.src == nil || r.dst != nil || r.untracked {
			continue
		}
		if r.kind == objstore.KindDirectory {
			dirs = append(dirs, r)
			continue
		}
		p.emit(Action{Kind: ActDelete, ID: id, EntryKind: r.kind, From: p.abs(id)})
		p.vacate(id)
		delete(p.pos, id)
	}
	sort.SliceStable(dirs, func(i, j int) bool {
		di, dj := p.depth(dirs[i].id), p.depth(dirs[j].id)
		if di != dj {
			return di > dj
		}
		return dirs[i].id < dirs[j].id
	})
	for _, r := range dirs {
		p.emit(Action{Kind: ActRmdir, ID: r.id, EntryKind: r.kind, From: p.abs(r.id)})
		p.vacate(r.id)
	}
	for _, r := range dirs {
		delete(p.pos, r.id)
	}
}

// content rewrites changed files in place and applies attribute changes.
func (p *planner) content() error {
	for _, id := range p.order {
		r := p.recs[id]
		if r.dst == nil || r.untracked {
			continue
		}
		path := p.abs(id)
		if r.src == nil {
			if r.kind == objstore.KindDirectory && (r.dst.Attrs != 0 || r.dst.XAttrHash != "") {
				p.emit(p.attrsAction(r, path))
			}
			continue
		}
		if r.kind != objstore.KindDirectory && r.src.Hash != r.dst.Hash {
			if p.opts.Backups && (r.base == nil || r.src.Hash != r.base.Hash) {
				name, err := p.backupName(r.dst.Parent, r.dst.Name)
				if err != nil {
					return err
				}
				p.emit(Action{
					Kind:      ActBackup,
					ID:        id,
					EntryKind: r.kind,
					From:      path,
					To:        filepath.Join(p.abs(r.dst.Parent), name),
				})
			}
			p.emit(Action{Kind: ActWrite, ID: id, EntryKind: r.kind, To: path, Hash: r.dst.Hash, Before: r.origin})
			if r.dst.Attrs != 0 || r.dst.XAttrHash != "" {
				p.emit(p.attrsAction(r, path))
			}
			continue
		}
		if r.src.Attrs != r.dst.Attrs || r.src.XAttrHash != r.dst.XAttrHash {
			p.emit(p.attrsAction(r, path))
		}
	}
	return nil
}

// finals collects the tree changes in target order, parents first.
func (p *planner) finals() {
	type ranked struct {
		f     final
		depth int
	}
	var out []ranked
	for _, id := range p.order {
		r := p.recs[id]
		if r.fin == nil {
			continue
		}
		out = append(out, ranked{f: *r.fin, depth: p.finalDepth(id)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return out[i].f.id < out[j].f.id
	})
	for _, r := range out {
		p.plan.finals = append(p.plan.finals, r.f)
	}
}

func relUnder(base, abs string) (string, error) {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under %s", abs, base)
	}
	return filepath.ToSlash(rel), nil
}
