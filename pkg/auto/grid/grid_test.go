package grid

import (
	"testing"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Position
		wantErr bool
	}{
		{
			name:  "valid 2x2 grid position 1,1",
			input: "2.2.1.1",
			want:  Position{Rows: 2, Cols: 2, Row: 1, Col: 1},
		},
		{
			name:  "valid 3x3 grid position 2,2",
			input: "3.3.2.2",
			want:  Position{Rows: 3, Cols: 3, Row: 2, Col: 2},
		},
		{name: "empty string", input: "", wantErr: true},
		{name: "too few parts", input: "2.2.1", wantErr: true},
		{name: "not a number", input: "2.x.1.1", wantErr: true},
		{name: "row > rows", input: "2.2.3.1", wantErr: true},
		{name: "row < 1", input: "2.2.0.1", wantErr: true},
		{name: "zero cols", input: "2.0.1.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	if s := (Position{Rows: 2, Cols: 3, Row: 1, Col: 2}).String(); s != "2.3.1.2" {
		t.Errorf("String() = %s", s)
	}
}

func TestCell(t *testing.T) {
	bounds := finder.NewRegion(100, 100, 300, 200)

	tests := []struct {
		pos  Position
		want finder.Region
	}{
		{Position{Rows: 2, Cols: 2, Row: 1, Col: 1}, finder.NewRegion(100, 100, 150, 100)},
		{Position{Rows: 2, Cols: 2, Row: 2, Col: 2}, finder.NewRegion(250, 200, 150, 100)},
		{Position{Rows: 1, Cols: 3, Row: 1, Col: 3}, finder.NewRegion(300, 100, 100, 200)},
	}
	for _, tt := range tests {
		t.Run(tt.pos.String(), func(t *testing.T) {
			if got := tt.pos.Cell(bounds); got != tt.want {
				t.Errorf("Cell() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCellOf(t *testing.T) {
	screen := finder.NewRegion(0, 0, 1920, 1080)

	cell, err := CellOf(screen, "2.2.2.1")
	if err != nil {
		t.Fatal(err)
	}
	if cell != finder.NewRegion(0, 540, 960, 540) {
		t.Errorf("CellOf() = %s", cell)
	}
	if !cell.Within(screen) {
		t.Error("格子应位于屏幕内")
	}

	if _, err := CellOf(screen, "invalid"); err == nil {
		t.Error("CellOf(invalid) 应返回错误")
	}
}

func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Parse("3.3.2.2")
	}
}
