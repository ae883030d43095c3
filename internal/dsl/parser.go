package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	tableRe            = regexp.MustCompile(`^table\s+([\w ]+?)\s*:$`)
	ownerRe            = regexp.MustCompile(`^\s*owner\s+([A-Za-z0-9_.@-]+)\s*$`)
	fieldRe            = regexp.MustCompile(`^\s*([^:#]+?):\s*([^\s#]+)(.*)$`)
	descriptionRe      = regexp.MustCompile(`^\s*description\s*:\s*(.*)$`)
	formulaRe          = regexp.MustCompile(`^\s*formula\s+(\w+)\s*\(\s*([^)]*)\)\s*(?:as\s+(.+?))?\s*$`)
	reConstraintsStart = regexp.MustCompile(`^\s*constraints\s*:\s*$`)
	reUniqueLine       = regexp.MustCompile(`^\s*unique\s*\(\s*([^)]+)\s*\)\s*$`)
)

var knownTypes = map[string]bool{
	"string": true, "int": true, "float": true, "bool": true, "date": true, "datetime": true,
}

// splitOptionTokens делит "hidden k=v k2='v 2'" на токены, не рвёт по пробелам внутри кавычек
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}
	for _, r := range s {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			buf = append(buf, r)
		case r == '"' && !inSingle:
			inDouble = !inDouble
			buf = append(buf, r)
		case (r == ' ' || r == '\t') && !inSingle && !inDouble:
			flush()
		default:
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// LoadTables читает один .dsl файл
func LoadTables(path string) ([]*TableDecl, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse разбирает декларации таблиц
func Parse(r io.Reader) ([]*TableDecl, error) {
	var tables []*TableDecl
	var current *TableDecl
	currentOwner := ""
	inConstraints := false
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// owner ...
		if m := ownerRe.FindStringSubmatch(line); m != nil {
			currentOwner = m[1]
			continue
		}

		// table <Name>:
		if m := tableRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				tables = append(tables, current)
			}
			current = &TableDecl{Name: strings.TrimSpace(m[1]), Owner: currentOwner}
			inConstraints = false
			continue
		}
		if current == nil {
			// вне таблицы ничего не ждём
			return nil, fmt.Errorf("line %d: %q outside of a table block", lineNo, line)
		}

		// constraints:
		if reConstraintsStart.MatchString(line) {
			inConstraints = true
			continue
		}
		if inConstraints {
			if m := reUniqueLine.FindStringSubmatch(line); m != nil {
				current.UniqueKeys = append(current.UniqueKeys, splitList(m[1])...)
				continue
			}
			// любая другая строка закрывает блок
			inConstraints = false
		}

		// formula op(a, b) as name
		if m := formulaRe.FindStringSubmatch(line); m != nil {
			f := FormulaDecl{Operation: strings.ToLower(m[1]), Columns: splitList(m[2]), Name: strings.TrimSpace(m[3])}
			if f.Name == "" {
				f.Name = f.Operation
			}
			if len(f.Columns) == 0 {
				return nil, fmt.Errorf("line %d: formula %s has no columns", lineNo, f.Operation)
			}
			current.Formulas = append(current.Formulas, f)
			continue
		}

		if m := descriptionRe.FindStringSubmatch(line); m != nil {
			current.Description = unquote(strings.TrimSpace(m[1]))
			continue
		}

		// колонки: name: type options
		if m := fieldRe.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			typ := strings.ToLower(m[2])
			if !knownTypes[typ] {
				return nil, fmt.Errorf("line %d: column %q has unknown type %q", lineNo, name, m[2])
			}
			optsRaw := strings.TrimSpace(m[3])
			if i := strings.IndexByte(optsRaw, '#'); i >= 0 {
				optsRaw = strings.TrimSpace(optsRaw[:i])
			}
			optsRaw = strings.ReplaceAll(optsRaw, ",", " ")

			c := ColumnDecl{Name: name, Type: typ, Options: map[string]string{}}
			for _, tok := range splitOptionTokens(optsRaw) {
				// флаг без значения -> "true"
				if !strings.Contains(tok, "=") {
					c.Options[strings.ToLower(tok)] = "true"
					continue
				}
				kv := strings.SplitN(tok, "=", 2)
				if k := strings.ToLower(strings.TrimSpace(kv[0])); k != "" {
					c.Options[k] = unquote(strings.TrimSpace(kv[1]))
				}
			}
			current.Columns = append(current.Columns, c)
			continue
		}
		return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		tables = append(tables, current)
	}
	return tables, nil
}

// LoadAllTables обходит каталог и читает все *.dsl
func LoadAllTables(root string) ([]*TableDecl, error) {
	var result []*TableDecl
	seen := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		decls, err := LoadTables(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, t := range decls {
			key := t.Owner + "/" + t.Name
			if prev, ok := seen[key]; ok {
				return fmt.Errorf("duplicate table %q for owner %q (%s and %s)", t.Name, t.Owner, prev, path)
			}
			seen[key] = path
			result = append(result, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
