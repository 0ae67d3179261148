package export

import (
	"fmt"
	"html/template"
	"os"

	"github.com/xkilldash9x/mkgraph/internal/knowledgegraph"
)

// htmlNode and htmlLink are the shapes the embedded D3 script consumes.
type htmlNode struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

type htmlLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Weight int    `json:"weight"`
}

type htmlData struct {
	Revision uint64
	Counts   map[string]int
	Edges    int
	Nodes    template.JS
	Links    template.JS
}

func (e *Exporter) writeHTML(snap *knowledgegraph.Snapshot, path string) error {
	var nodes []htmlNode
	counts := make(map[string]int)
	for _, n := range snap.Nodes() {
		typ := string(n.Type)
		if typ == "" {
			typ = "unknown"
		}
		counts[typ]++
		nodes = append(nodes, htmlNode{ID: n.ID, Name: n.Label, Type: typ, Sources: n.Docs})
	}
	var links []htmlLink
	for _, edge := range snap.Edges() {
		links = append(links, htmlLink{Source: edge.From, Target: edge.To, Label: edge.Label, Weight: edge.Weight})
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	defer f.Close()

	data := htmlData{
		Revision: snap.Revision(),
		Counts:   counts,
		Edges:    len(links),
		Nodes:    template.JS(nodesJSON),
		Links:    template.JS(linksJSON),
	}
	if err := htmlTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to render export: %w", err)
	}
	return f.Close()
}

var htmlTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Knowledge Graph</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; }
        .stats { margin-bottom: 20px; color: #666; }
        #graph { width: 100%; height: 600px; border: 1px solid #ddd; background: white; border-radius: 8px; }
        .node circle { stroke: #fff; stroke-width: 2px; cursor: pointer; }
        .node text { font-size: 12px; }
        .link { stroke: #999; stroke-opacity: 0.6; }
    </style>
</head>
<body>
    <h1>Knowledge Graph</h1>
    <div class="stats">
        revision <strong>{{.Revision}}</strong> ·
        {{range $type, $count := .Counts}}<strong>{{$count}}</strong> {{$type}} · {{end}}<strong>{{.Edges}}</strong> connections
    </div>
    <div id="graph"></div>

    <script type="text/javascript">
        const nodes = {{.Nodes}};
        const links = {{.Links}};

        const colors = { person: "#4fc3f7", organization: "#81c784", topic: "#ffb74d", concept: "#ba68c8", event: "#e57373", unknown: "#90a4ae" };

        const width = document.getElementById('graph').clientWidth;
        const height = 600;

        const svg = d3.select('#graph')
            .append('svg')
            .attr('width', width)
            .attr('height', height);

        const simulation = d3.forceSimulation(nodes)
            .force('link', d3.forceLink(links).id(d => d.id).distance(100))
            .force('charge', d3.forceManyBody().strength(-300))
            .force('center', d3.forceCenter(width / 2, height / 2));

        const link = svg.append('g')
            .selectAll('line')
            .data(links)
            .join('line')
            .attr('class', 'link')
            .attr('stroke-width', d => Math.min(1 + d.weight, 6));

        const node = svg.append('g')
            .selectAll('g')
            .data(nodes)
            .join('g')
            .attr('class', 'node')
            .call(d3.drag()
                .on('start', dragstarted)
                .on('drag', dragged)
                .on('end', dragended));

        node.append('circle')
            .attr('r', 15)
            .attr('fill', d => colors[d.type] || colors.unknown);

        node.append('text')
            .attr('dx', 18)
            .attr('dy', 4)
            .text(d => d.name);

        node.append('title')
            .text(d => d.type + ': ' + d.name + '\n' + d.sources.join(', '));

        simulation.on('tick', () => {
            link
                .attr('x1', d => d.source.x)
                .attr('y1', d => d.source.y)
                .attr('x2', d => d.target.x)
                .attr('y2', d => d.target.y);

            node.attr('transform', d => 'translate(' + d.x + ',' + d.y + ')');
        });

        function dragstarted(event) {
            if (!event.active) simulation.alphaTarget(0.3).restart();
            event.subject.fx = event.subject.x;
            event.subject.fy = event.subject.y;
        }

        function dragged(event) {
            event.subject.fx = event.x;
            event.subject.fy = event.y;
        }

        function dragended(event) {
            if (!event.active) simulation.alphaTarget(0);
            event.subject.fx = null;
            event.subject.fy = null;
        }
    </script>
</body>
</html>
`))
