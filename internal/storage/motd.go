package storage

import (
	"bufio"
	"os"
	"strings"
)

// MOTD is the message of the day shown to clients after registration
type MOTD struct {
	Lines []string
}

// Empty reports whether there is nothing to show.
func (m *MOTD) Empty() bool {
	return m == nil || len(m.Lines) == 0
}

// LoadMOTD reads the message of the day from a text file.
// A missing file or an empty path yields an empty MOTD.
func LoadMOTD(path string) (*MOTD, error) {
	if path == "" {
		return &MOTD{}, nil
	}
	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &MOTD{}, nil
		}
		return nil, err
	}

	// Drop trailing blank lines but keep blank lines inside the text
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return &MOTD{Lines: lines}, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Clean carriage returns
		lines = append(lines, strings.ReplaceAll(scanner.Text(), "\r", ""))
	}
	return lines, scanner.Err()
}
