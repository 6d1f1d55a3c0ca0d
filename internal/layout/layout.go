// Package layout positions the nodes of a presentation graph. Every
// containment scope gets its own layered, top-to-bottom pass; containers are
// sized from their laid-out content before the enclosing scope runs.
package layout

import (
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/rendis/blockflow/internal/canvas"
)

// Options controls spacing and sizing. Zero values fall back to
// DefaultOptions.
type Options struct {
	NodeWidth          float64
	NodeHeight         float64
	UtilityWidth       float64
	UtilityHeight      float64
	NodeSep            float64
	RankSep            float64
	ContainerBaseWidth float64
	ContainerWidthStep float64
	ContainerPadding   float64
	ContainerHeader    float64
}

func DefaultOptions() Options {
	return Options{
		NodeWidth:          400,
		NodeHeight:         120,
		UtilityWidth:       80,
		UtilityHeight:      40,
		NodeSep:            60,
		RankSep:            80,
		ContainerBaseWidth: 450,
		ContainerWidthStep: 150,
		ContainerPadding:   40,
		ContainerHeader:    100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	set := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	set(&o.NodeWidth, d.NodeWidth)
	set(&o.NodeHeight, d.NodeHeight)
	set(&o.UtilityWidth, d.UtilityWidth)
	set(&o.UtilityHeight, d.UtilityHeight)
	set(&o.NodeSep, d.NodeSep)
	set(&o.RankSep, d.RankSep)
	set(&o.ContainerBaseWidth, d.ContainerBaseWidth)
	set(&o.ContainerWidthStep, d.ContainerWidthStep)
	set(&o.ContainerPadding, d.ContainerPadding)
	set(&o.ContainerHeader, d.ContainerHeader)
	return o
}

// Apply lays out every visible node of g and returns the result. Positions
// are relative to the parent container. Hidden nodes keep their previous
// position. Nodes come back ordered by ascending nesting depth so a parent
// always precedes its children.
func Apply(g canvas.Graph, opts Options) canvas.Graph {
	opts = opts.withDefaults()
	out := g.Clone()
	l := newLayouter(out, opts)

	// Collapsed containers show no content; they keep a block's height.
	for i := range out.Nodes {
		n := &out.Nodes[i]
		if canvas.IsContainer(n.Type) && !n.Hidden && collapsed(n) {
			n.Width = l.containerWidth(n.ID)
			n.Height = opts.NodeHeight
		}
	}
	for _, owner := range l.scopeOrder() {
		l.layoutScope(owner)
	}
	l.clampWidths()

	sort.SliceStable(out.Nodes, func(i, j int) bool {
		return l.depth[out.Nodes[i].ID] < l.depth[out.Nodes[j].ID]
	})
	return out
}

type layouter struct {
	g        canvas.Graph
	opts     Options
	idx      map[string]int
	depth    map[string]int
	maxDepth int
	children map[string][]string
}

func newLayouter(g canvas.Graph, opts Options) *layouter {
	l := &layouter{
		g:        g,
		opts:     opts,
		idx:      g.Index(),
		depth:    make(map[string]int, len(g.Nodes)),
		children: make(map[string][]string),
	}
	for _, n := range g.Nodes {
		d := g.Depth(n.ID)
		l.depth[n.ID] = d
		if canvas.IsContainer(n.Type) && !n.Hidden && d > l.maxDepth {
			l.maxDepth = d
		}
	}
	for _, n := range g.Nodes {
		if n.Hidden {
			continue
		}
		parent := n.ParentID
		if _, ok := l.idx[parent]; !ok {
			parent = ""
		}
		l.children[parent] = append(l.children[parent], n.ID)
	}
	return l
}

func (l *layouter) node(id string) *canvas.Node {
	return &l.g.Nodes[l.idx[id]]
}

// scopeOrder returns every scope owner, deepest first, top level last.
func (l *layouter) scopeOrder() []string {
	owners := make([]string, 0, len(l.children))
	for owner := range l.children {
		if owner != "" {
			owners = append(owners, owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		di, dj := l.depth[owners[i]], l.depth[owners[j]]
		if di != dj {
			return di > dj
		}
		return l.idx[owners[i]] < l.idx[owners[j]]
	})
	return append(owners, "")
}

// project maps id onto the member of scope owner that contains it, climbing
// parent pointers. It returns "" when id lies outside the scope.
func (l *layouter) project(id, owner string) string {
	cur := id
	for steps := 0; steps < canvas.MaxTraversal; steps++ {
		i, ok := l.idx[cur]
		if !ok {
			return ""
		}
		parent := l.g.Nodes[i].ParentID
		if _, known := l.idx[parent]; !known {
			parent = ""
		}
		if parent == owner {
			return cur
		}
		if parent == "" {
			return ""
		}
		cur = parent
	}
	return ""
}

func (l *layouter) size(id string) (float64, float64) {
	n := l.node(id)
	switch {
	case canvas.IsContainer(n.Type):
		if n.Width > 0 {
			return n.Width, n.Height
		}
		return l.containerWidth(id), l.opts.NodeHeight
	case n.IsUtility():
		return l.opts.UtilityWidth, l.opts.UtilityHeight
	}
	w, h := l.opts.NodeWidth, l.opts.NodeHeight
	if n.Width > 0 {
		w = n.Width
	}
	if n.Height > 0 {
		h = n.Height
	}
	return w, h
}

// ranks builds the scope graph from every visible edge projected onto the
// scope's members and assigns each member its longest-path rank. Edges that
// would close a cycle are dropped.
func (l *layouter) ranks(owner string, members []string) (map[string]int, map[string][]string) {
	order := make(map[string]int, len(members))
	sg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for i, id := range members {
		order[id] = i
		_ = sg.AddVertex(id)
	}
	for _, e := range l.g.Edges {
		if e.Hidden {
			continue
		}
		src, tgt := l.project(e.Source, owner), l.project(e.Target, owner)
		if src == "" || tgt == "" || src == tgt {
			continue
		}
		_ = sg.AddEdge(src, tgt)
	}

	sorted, err := graph.StableTopologicalSort(sg, func(a, b string) bool { return order[a] < order[b] })
	if err != nil {
		sorted = members
	}
	preds, err := sg.PredecessorMap()
	if err != nil {
		preds = map[string]map[string]graph.Edge[string]{}
	}

	rank := make(map[string]int, len(members))
	predList := make(map[string][]string, len(members))
	for _, id := range sorted {
		r := 0
		for p := range preds[id] {
			predList[id] = append(predList[id], p)
			if rank[p]+1 > r {
				r = rank[p] + 1
			}
		}
		sort.Slice(predList[id], func(i, j int) bool { return order[predList[id][i]] < order[predList[id][j]] })
		rank[id] = r
	}
	return rank, predList
}

// layoutScope positions the members of owner's scope and, for a container,
// sizes the container around them.
func (l *layouter) layoutScope(owner string) {
	members := l.children[owner]
	if len(members) == 0 {
		return
	}
	order := make(map[string]int, len(members))
	for i, id := range members {
		order[id] = i
	}
	rank, preds := l.ranks(owner, members)

	// Group members into rows by rank.
	maxRank := 0
	for _, r := range rank {
		maxRank = max(maxRank, r)
	}
	rows := make([][]string, maxRank+1)
	for _, id := range members {
		rows[rank[id]] = append(rows[rank[id]], id)
	}

	// Barycenter ordering against the previous row.
	slot := make(map[string]float64, len(members))
	for r, row := range rows {
		if r > 0 {
			bary := make(map[string]float64, len(row))
			for _, id := range row {
				if len(preds[id]) == 0 {
					bary[id] = float64(order[id])
					continue
				}
				sum := 0.0
				for _, p := range preds[id] {
					sum += slot[p]
				}
				bary[id] = sum / float64(len(preds[id]))
			}
			sort.SliceStable(row, func(i, j int) bool { return bary[row[i]] < bary[row[j]] })
		}
		for i, id := range row {
			slot[id] = float64(i)
		}
	}

	// Row extents.
	rowWidth := make([]float64, len(rows))
	rowHeight := make([]float64, len(rows))
	contentWidth := 0.0
	for r, row := range rows {
		for i, id := range row {
			w, h := l.size(id)
			rowWidth[r] += w
			if i > 0 {
				rowWidth[r] += l.opts.NodeSep
			}
			rowHeight[r] = max(rowHeight[r], h)
		}
		contentWidth = max(contentWidth, rowWidth[r])
	}
	contentHeight := 0.0
	for r := range rows {
		if r > 0 {
			contentHeight += l.opts.RankSep
		}
		contentHeight += rowHeight[r]
	}

	offsetX, offsetY, frame := 0.0, 0.0, contentWidth
	if owner != "" {
		// Grow the container around its content.
		c := l.node(owner)
		width := max(l.containerWidth(owner), contentWidth+2*l.opts.ContainerPadding)
		c.Width = width
		c.Height = contentHeight + l.opts.ContainerHeader + l.opts.ContainerPadding
		frame = width
		offsetY = l.opts.ContainerHeader
	}

	// Place each row centred in the frame.
	y := offsetY
	for r, row := range rows {
		x := offsetX + (frame-rowWidth[r])/2
		for _, id := range row {
			w, h := l.size(id)
			n := l.node(id)
			n.Position = canvas.Position{X: x, Y: y + (rowHeight[r]-h)/2}
			x += w + l.opts.NodeSep
		}
		y += rowHeight[r] + l.opts.RankSep
	}
}

// containerWidth is the base width of the container id: deeper containers
// are narrower by one step per level.
func (l *layouter) containerWidth(id string) float64 {
	return l.opts.ContainerBaseWidth + l.opts.ContainerWidthStep*float64(l.maxDepth-l.depth[id])
}

func collapsed(n *canvas.Node) bool {
	switch d := n.Data.(type) {
	case canvas.LoopData:
		return d.Collapsed
	case canvas.ConditionalData:
		return d.Collapsed
	}
	return false
}

// clampWidths keeps every container at least as wide as any container nested
// inside it.
func (l *layouter) clampWidths() {
	ids := make([]string, 0, len(l.g.Nodes))
	for _, n := range l.g.Nodes {
		if canvas.IsContainer(n.Type) && !n.Hidden {
			ids = append(ids, n.ID)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool { return l.depth[ids[i]] > l.depth[ids[j]] })
	for _, id := range ids {
		n := l.node(id)
		p, ok := l.idx[n.ParentID]
		if !ok {
			continue
		}
		parent := &l.g.Nodes[p]
		parent.Width = max(parent.Width, n.Width)
	}
}

// AbsolutePosition resolves the position of id in the top-level coordinate
// space by adding up its ancestors' positions.
func AbsolutePosition(g canvas.Graph, id string) (canvas.Position, bool) {
	idx := g.Index()
	i, ok := idx[id]
	if !ok {
		return canvas.Position{}, false
	}
	pos := g.Nodes[i].Position
	seen := map[string]bool{id: true}
	parent := g.Nodes[i].ParentID
	for steps := 0; parent != "" && !seen[parent] && steps < canvas.MaxTraversal; steps++ {
		seen[parent] = true
		j, ok := idx[parent]
		if !ok {
			break
		}
		pos.X += g.Nodes[j].Position.X
		pos.Y += g.Nodes[j].Position.Y
		parent = g.Nodes[j].ParentID
	}
	return pos, true
}
