// Package pcd reads and writes ASCII PCD point cloud files, covering the
// fields the registration tooling needs: x/y/z, optional intensity and
// optional normal_x/normal_y/normal_z. Binary PCD data is not supported.
package pcd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/pointreg/internal/registration"
)

// header carries the subset of the PCD header we act on.
type header struct {
	fields []string
	points int
	data   string
}

// Read loads a cloud from an ASCII PCD file.
func Read(path string) (*registration.Cloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ReadFrom parses an ASCII PCD stream.
func ReadFrom(r io.Reader) (*registration.Cloud, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	hdr, line, err := readHeader(sc)
	if err != nil {
		return nil, err
	}
	if hdr.data != "ascii" {
		return nil, fmt.Errorf("pcd: unsupported DATA format %q (only ascii)", hdr.data)
	}
	if len(hdr.fields) == 0 {
		return nil, fmt.Errorf("pcd: missing FIELDS header")
	}

	col := make(map[string]int, len(hdr.fields))
	for i, f := range hdr.fields {
		col[f] = i
	}
	xi, xok := col["x"]
	yi, yok := col["y"]
	zi, zok := col["z"]
	if !xok || !yok || !zok {
		return nil, fmt.Errorf("pcd: FIELDS must include x, y and z (got %v)", hdr.fields)
	}
	ii, hasIntensity := col["intensity"]
	nxi, hasNx := col["normal_x"]
	nyi, hasNy := col["normal_y"]
	nzi, hasNz := col["normal_z"]
	hasNormals := hasNx && hasNy && hasNz

	cloud := &registration.Cloud{
		Points: make([]registration.Vec4, 0, hdr.points),
	}
	if hasIntensity {
		cloud.Intensities = make([]float64, 0, hdr.points)
	}
	if hasNormals {
		cloud.Normals = make([]registration.Vec4, 0, hdr.points)
	}

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) < len(hdr.fields) {
			return nil, fmt.Errorf("pcd: line %d: %d values, want %d", line, len(parts), len(hdr.fields))
		}
		vals := make([]float64, len(hdr.fields))
		for i := range vals {
			v, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				return nil, fmt.Errorf("pcd: line %d: %w", line, err)
			}
			vals[i] = v
		}

		cloud.Points = append(cloud.Points, registration.PointVec(vals[xi], vals[yi], vals[zi]))
		if hasIntensity {
			cloud.Intensities = append(cloud.Intensities, vals[ii])
		}
		if hasNormals {
			cloud.Normals = append(cloud.Normals, registration.DirVec(vals[nxi], vals[nyi], vals[nzi]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if hdr.points > 0 && len(cloud.Points) != hdr.points {
		return nil, fmt.Errorf("pcd: POINTS declares %d but file has %d", hdr.points, len(cloud.Points))
	}
	return cloud, nil
}

func readHeader(sc *bufio.Scanner) (header, int, error) {
	hdr := header{}
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		key := strings.ToUpper(parts[0])
		switch key {
		case "VERSION", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT":
			// Accepted and ignored; the ascii layout is self-describing
			// for our purposes.
		case "FIELDS":
			hdr.fields = parts[1:]
		case "POINTS":
			if len(parts) != 2 {
				return hdr, line, fmt.Errorf("pcd: line %d: malformed POINTS", line)
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return hdr, line, fmt.Errorf("pcd: line %d: %w", line, err)
			}
			hdr.points = n
		case "DATA":
			if len(parts) != 2 {
				return hdr, line, fmt.Errorf("pcd: line %d: malformed DATA", line)
			}
			hdr.data = strings.ToLower(parts[1])
			return hdr, line, nil
		default:
			return hdr, line, fmt.Errorf("pcd: line %d: unknown header field %q", line, parts[0])
		}
	}
	if err := sc.Err(); err != nil {
		return hdr, line, err
	}
	return hdr, line, fmt.Errorf("pcd: missing DATA header")
}

// Write stores a cloud as an ASCII PCD file, emitting whichever of the
// supported attributes the cloud carries.
func Write(path string, c *registration.Cloud) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(f, c); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// WriteTo writes the ASCII PCD representation of c.
func WriteTo(w io.Writer, c *registration.Cloud) error {
	fields := []string{"x", "y", "z"}
	if c.HasIntensities() {
		fields = append(fields, "intensity")
	}
	if c.HasNormals() {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
	}

	bw := bufio.NewWriter(w)
	n := c.Size()
	fmt.Fprintln(bw, "VERSION 0.7")
	fmt.Fprintf(bw, "FIELDS %s\n", strings.Join(fields, " "))
	fmt.Fprintf(bw, "SIZE%s\n", strings.Repeat(" 8", len(fields)))
	fmt.Fprintf(bw, "TYPE%s\n", strings.Repeat(" F", len(fields)))
	fmt.Fprintf(bw, "COUNT%s\n", strings.Repeat(" 1", len(fields)))
	fmt.Fprintf(bw, "WIDTH %d\n", n)
	fmt.Fprintln(bw, "HEIGHT 1")
	fmt.Fprintln(bw, "VIEWPOINT 0 0 0 1 0 0 0")
	fmt.Fprintf(bw, "POINTS %d\n", n)
	fmt.Fprintln(bw, "DATA ascii")

	for i := 0; i < n; i++ {
		p := c.Points[i]
		fmt.Fprintf(bw, "%g %g %g", p[0], p[1], p[2])
		if c.HasIntensities() {
			fmt.Fprintf(bw, " %g", c.Intensities[i])
		}
		if c.HasNormals() {
			nm := c.Normals[i]
			fmt.Fprintf(bw, " %g %g %g", nm[0], nm[1], nm[2])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
