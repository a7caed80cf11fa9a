// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"bufio"
	"os"
)

type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

func WriteBytes(data []byte, serial Serialize) error {
	if len(data) == 0 {
		return nil
	}
	return serial.WriteData(data, len(data))
}

var _ Serialize = new(FileSerialize)

// FileSerialize writes a file through a buffer. The file is created or
// truncated; Close flushes and syncs.
type FileSerialize struct {
	file *os.File
	w    *bufio.Writer
}

func NewFileSerialize(name string) (*FileSerialize, error) {
	file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSerialize{
		file: file,
		w:    bufio.NewWriterSize(file, 1<<16),
	}, nil
}

func (serial *FileSerialize) WriteData(buffer []byte, len int) error {
	_, err := serial.w.Write(buffer[:len])
	return err
}

func (serial *FileSerialize) Close() error {
	err := serial.w.Flush()
	if err == nil {
		err = serial.file.Sync()
	}
	cerr := serial.file.Close()
	if err == nil {
		err = cerr
	}
	return err
}
